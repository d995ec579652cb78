package sawmill_test

import (
	"context"
	"fmt"
	"log"

	"github.com/crimson-sun/sawmill/pkg/sawmill"
)

func Example() {
	steps := []string{
		"start job %d",
		"load data %d",
		"process batch %d",
		"save result %d",
		"finish job %d",
	}
	line := func(i int) string { return fmt.Sprintf(steps[i%len(steps)], i) }

	s := sawmill.New(
		sawmill.WithWindowLength(3),
		sawmill.WithModelKind("ngram"),
	)

	for i := 0; i < 20; i++ {
		s.Observe(line(i))
	}
	if err := s.Train(context.Background()); err != nil {
		log.Fatal(err)
	}

	anomalies := 0
	for i := 0; i < 10; i++ {
		if v, ok, _ := s.Judge(line(i)); ok && v.Anomaly {
			anomalies++
		}
	}

	fmt.Printf("templates: %d\n", len(s.Clusters()))
	fmt.Printf("anomalies: %d\n", anomalies)
	// Output:
	// templates: 5
	// anomalies: 0
}
