// Package safety gates turns through an external hazard classifier.
//
// The guard runs at two points: before generation it classifies the last
// transcript message and annotates it with a hazard category on an unsafe
// verdict; after generation it classifies the user input together with the
// fresh reply. The input gate informs generation (via message metadata) but
// never blocks; the output gate currently performs no remediation, its
// verdict is logged and discarded, a documented limitation.
//
// With no classifier configured both gates are no-ops.
package safety
