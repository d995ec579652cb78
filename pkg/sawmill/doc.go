// Package sawmill provides an embeddable log anomaly detector: it mines
// message templates from raw log lines, learns the normal ordering of
// templates, and judges new lines against the learned order.
//
// Quick start:
//
//	s := sawmill.New(sawmill.WithWindowLength(10))
//
//	for _, line := range trainingLines {
//	    s.Observe(line)
//	}
//	if err := s.Train(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	v, ok, _ := s.Judge("ERROR: connection refused to db-primary:5432")
//	if ok && v.Anomaly {
//	    fmt.Println("unexpected sequence at window", v.WindowIndex)
//	}
//
// The Sawmill instance is safe for concurrent use. Create once, reuse
// across requests.
package sawmill
