// Package queue provides asynchronous delivery scheduling for
// notifications. Jobs reference a notification record by id; the payload
// itself stays in the notification store, so a job is only a pointer plus
// ordering metadata.
//
// Claim order is priority first, scheduled time second. Delayed
// notifications become claimable once their scheduled time passes. A job
// can be cancelled while it is still waiting; once a worker claims it,
// cancellation is refused.
//
// Two storage backends are provided: an in-memory one for tests and local
// development, and a Redis one for production where multiple workers
// compete for jobs.
//
// Example:
//
//	storage := queue.NewMemoryStorage()
//	enq := queue.NewEnqueuer(storage)
//	_ = enq.Enqueue(ctx, notificationID,
//		queue.WithPriority(notification.PriorityHigh),
//		queue.WithDelay(5*time.Minute),
//	)
//
//	worker, _ := queue.NewWorker(storage, handleJob, queue.WithMaxConcurrent(8))
//	_ = worker.Start(ctx)
//	defer worker.Stop()
package queue
