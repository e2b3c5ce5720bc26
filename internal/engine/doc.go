// Package engine drives a control page: it turns user interactions on the
// document into command invocations and swaps the returned fragments back in.
//
// A trigger runs the pipeline collect → resolve uploads → admit → invoke.
// The gate admits one invocation at a time; triggers arriving while one is
// in flight are dropped with ErrBusy. Text input is debounced engine-wide,
// so only the last input of a burst is submitted. Fragments carrying
// auto-update directives re-run the pipeline when their timers fire.
//
// Start issues the page's first command from its location, bypassing field
// collection.
package engine
