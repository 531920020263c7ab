// Package intake implements the study material intake dialogue.
//
// A conversation walks NAME → MATERIAL_TYPE → SUBJECT → SEMESTER → FILE. Each
// inbound Event is applied by Engine.Handle while the conversation's identity is
// locked in the Store, so one event advances at most one step and events of other
// conversations are never blocked. Accepting the file hands the submission to a
// Deliverer and removes the session whatever the delivery outcome.
package intake
