// Package supervisor runs the backend worker as a single supervised child
// process.
//
// At most one worker is live at a time. Output is split into lines,
// classified by severity and forwarded to an Observer; the raw stream is
// also appended to the worker log file. Every handle produces exactly one
// stopped event, whether the worker exits on its own or is stopped.
//
// Shutdown on unix signals the worker's process group with SIGTERM and
// schedules SIGKILL after a grace period. On windows there is no group to
// signal, so the tree is killed directly and a sweep removes strays whose
// command line references the project root.
package supervisor
