package source

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
)

// RawFile reads regions of a headerless little-endian row-major binary file
// without loading it. Each contiguous run along the last axis is fetched with
// a single ReadAt, so concurrent reads are safe.
type RawFile struct {
	r     io.ReaderAt
	c     io.Closer
	shape []int
	dtype ndarray.DType
}

// OpenRaw opens path as a raw array of the given dtype and shape. The file
// size must match exactly.
func OpenRaw(path string, dt ndarray.DType, shape []int) (*RawFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open raw file %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	rf, err := NewRaw(f, st.Size(), dt, shape)
	if err != nil {
		f.Close()
		return nil, err
	}
	rf.c = f
	return rf, nil
}

// NewRaw wraps any io.ReaderAt of the given size.
func NewRaw(r io.ReaderAt, size int64, dt ndarray.DType, shape []int) (*RawFile, error) {
	if err := errors.ValidatePositive(errors.ErrCodeInvalidInput, "raw shape", shape); err != nil {
		return nil, err
	}
	want := int64(dt.Size())
	for _, s := range shape {
		want *= int64(s)
	}
	if size != want {
		return nil, errors.New(errors.ErrCodeInvalidInput, "raw data is %d bytes, shape %v of %s needs %d", size, shape, dt, want)
	}
	return &RawFile{r: r, shape: append([]int(nil), shape...), dtype: dt}, nil
}

func (f *RawFile) Shape() []int         { return append([]int(nil), f.shape...) }
func (f *RawFile) DType() ndarray.DType { return f.dtype }

// Close closes the underlying file, if RawFile opened it.
func (f *RawFile) Close() error {
	if f.c == nil {
		return nil
	}
	return f.c.Close()
}

// ReadRegion reads box from the file.
func (f *RawFile) ReadRegion(ctx context.Context, box geometry.Box) (*ndarray.Array, error) {
	if err := checkRegion(f.shape, box); err != nil {
		return nil, err
	}
	out := ndarray.New(f.dtype, box.Shape()...)
	strides := make([]int, len(f.shape))
	acc := 1
	for i := len(f.shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= f.shape[i]
	}

	width := f.dtype.Size()
	run := box[len(box)-1].Len()
	buf := make([]byte, run*width)
	data := out.Data()
	dst := 0

	var readErr error
	ndarray.Rows(box.Shape(), func(idx []int) {
		if readErr != nil {
			return
		}
		if readErr = ctx.Err(); readErr != nil {
			return
		}
		off := 0
		for i, x := range idx {
			off += (x + box[i].Start) * strides[i]
		}
		if _, err := f.r.ReadAt(buf, int64(off*width)); err != nil {
			readErr = errors.Wrap(errors.ErrCodeInternal, err, "read raw region %v", box)
			return
		}
		decode(f.dtype, buf, data[dst:dst+run])
		dst += run
	})
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

func decode(dt ndarray.DType, b []byte, out []float64) {
	le := binary.LittleEndian
	for i := range out {
		switch dt {
		case ndarray.Uint8:
			out[i] = float64(b[i])
		case ndarray.Uint16:
			out[i] = float64(le.Uint16(b[i*2:]))
		case ndarray.Int16:
			out[i] = float64(int16(le.Uint16(b[i*2:])))
		case ndarray.Int32:
			out[i] = float64(int32(le.Uint32(b[i*4:])))
		case ndarray.Float32:
			out[i] = float64(math.Float32frombits(le.Uint32(b[i*4:])))
		default:
			out[i] = math.Float64frombits(le.Uint64(b[i*8:]))
		}
	}
}

// WriteRaw encodes an array in the layout RawFile reads.
func WriteRaw(w io.Writer, a *ndarray.Array) error {
	le := binary.LittleEndian
	dt := a.DType()
	buf := make([]byte, dt.Size())
	for _, v := range a.Data() {
		v = dt.Convert(v)
		switch dt {
		case ndarray.Uint8:
			buf[0] = uint8(v)
		case ndarray.Uint16:
			le.PutUint16(buf, uint16(v))
		case ndarray.Int16:
			le.PutUint16(buf, uint16(int16(v)))
		case ndarray.Int32:
			le.PutUint32(buf, uint32(int32(v)))
		case ndarray.Float32:
			le.PutUint32(buf, math.Float32bits(float32(v)))
		default:
			le.PutUint64(buf, math.Float64bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

var _ Source = (*RawFile)(nil)
