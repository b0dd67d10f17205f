// Package pipeline runs a graph of per-pixel tasks.
//
// A task is configured by a Spec: a unique name, a registered type, the
// data and record slots it requires and the slots it outputs. Resolve
// orders specs so producers run before consumers, keeping configuration
// order among tasks that are ready together, and rejects duplicate
// producers, unmet requirements and cycles with typed errors wrapping
// ErrInvalidPipeline.
//
// Pipeline.RunPixel executes the resolved tasks over one pixel. Each task
// sees a View holding copies of only the slots it requires, and must
// return exactly the slots it declared; anything else is an
// OutputContractViolationError. A task reporting InsufficientObservationsError
// yields empty records rather than failing the pixel, and a pixel with no
// valid input runs no task at all.
//
// Optional pre/post hooks (Observer) report each pixel and task:
// BeforePixel, BeforeTask/AfterTask (with duration and error), AfterPixel.
// Pass RunOptions{Observer: obs} to RunPixel; combine several with
// MultiObserver. Task wrappers WithTimeout, Tap and Recover adapt a
// TaskFunc without changing its contract.
package pipeline
