// Package dag provides the dependency graph behind tile jobs: nodes grouped
// into stages, edges leading from one stage to the next.
//
// A tile job has two stages. Every tile contributes a read node in stage 0
// and an apply node in stage 1, joined by one edge:
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "read:0-0", Stage: 0})
//	g.AddNode(dag.Node{ID: "apply:0-0", Stage: 1})
//	g.AddEdge(dag.Edge{From: "read:0-0", To: "apply:0-0"})
//
// [DAG.Validate] checks the stage rule and acyclicity; [DAG.Order] returns a
// deterministic dependency order. [ToDOT] emits Graphviz DOT with one rank
// per stage and [RenderSVG] lays it out with the embedded Graphviz engine.
//
// A DAG is not safe for concurrent mutation. Once built it may be read from
// many goroutines.
package dag
