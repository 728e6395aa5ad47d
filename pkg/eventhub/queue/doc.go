/*
Package queue provides the ordered work queue that every execution lane in
eventhub is built on.

# OrderedQueue

An OrderedQueue holds items of type T and feeds them, one at a time and in
push order, to a single handler running on the queue's own goroutine:

	q := queue.New[string]("hits")
	q.SetHandler(func(item string) bool {
	    return send(item) == nil
	})
	q.Start()
	q.Push("a")

The handler peeks at the head item. Returning true pops it and moves on to the
next one. Returning false leaves the item in place and pauses draining until
the queue is triggered again by a Push, Start or StartAfter. This is how
retrying consumers implement backoff without tracking item identity:

	q.SetHandler(func(h Hit) bool {
	    if err := submit(h); isTransient(err) {
	        q.StartAfter(5 * time.Second)
	        return false
	    }
	    return true
	})

Stop prevents the next handler invocation but never interrupts the one in
flight. WaitUntilStopped blocks until the queue is stopped and idle.

# Lane

A Lane is an OrderedQueue of closures whose handler always reports handled.
It is the single-worker execution context used for the hub and for each
extension: closures submitted to one lane never run concurrently with each
other.

	lane := queue.NewLane("ext:analytics")
	defer lane.Close()
	err := lane.Run(ctx, func() { ... }) // blocks until executed

# Thread Safety

All methods are safe for concurrent use. Handlers run on the queue's own
goroutine and must not call WaitUntilStopped or Run on their own queue.
*/
package queue
