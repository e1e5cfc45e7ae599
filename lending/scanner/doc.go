// Package scanner reclassifies loan records whose due date has passed from ACTIVE to OVERDUE.
//
// A sweep only changes record status. It never touches inventory and never computes fines;
// fines are settled when the copy is returned. Sweeps are idempotent, so Sweep can be called on
// demand while Run repeats it on a fixed interval:
//
//	s, err := scanner.New(store, scanner.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	go func() { _ = s.Run(ctx, time.Hour) }()
package scanner
