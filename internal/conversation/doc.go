// Package conversation implements the dialogue that takes a tenant from a
// free-text complaint to a fix or a technician.
//
// The dialogue is a fixed graph of sixteen steps. Machine.Transition is a
// pure function of the current session snapshot and one event: it returns
// the steps entered, the updated context, the messages to append and the
// side effects (instructions) the caller must run. The caller executes each
// instruction and feeds the resulting event back in until no instructions
// remain.
//
// # Steps
//
// A turn normally rests in one of the waiting steps:
//
//	appliance_selection   the user picks equipment or fills in the form
//	user_confirmation     the user picks an open issue or starts a new one
//	follow_up_questions   one catalog question per turn
//	solution_testing      the user reports whether a fix worked
//	technician_assignment only after a failed hand-off
//	completed             terminal
//
// The other steps are entered and left within a single turn while
// instructions run.
//
// # History
//
// Session.History is append-only and always a walk of the graph; ValidWalk
// checks that.
package conversation
