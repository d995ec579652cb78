package sawmill

// Verdict is the judgement for one completed window of template ids.
// This is the stable public type — internal representations may evolve
// independently without breaking consumers.
type Verdict struct {
	WindowIndex int   `json:"windowIndex"`          // 0-based, increments per judged window
	Symbols     []int `json:"symbols"`              // the leading template ids
	Actual      int   `json:"actual"`               // the id that followed them
	PredictedK  []int `json:"predictedK"`           // the model's top-k continuations
	Anomaly     bool  `json:"anomaly"`              // true when Actual is absent from PredictedK
}

// Cluster is a mined message template.
type Cluster struct {
	ID       int    `json:"id"`       // stable template id, assigned in discovery order
	Template string `json:"template"` // literals with <*> at variable positions
	Matches  int    `json:"matches"`  // lines classified into this template
}
