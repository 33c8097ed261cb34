// Package displayrules holds the view-model every rendering stage works on.
//
// Route authors declare display rules with a naming convention: c<N> holds
// the two partial flags of section N, c<N>_content the fragment reference(s)
// of a slot, c<N>_ejsData the data handed to its component(s) and c<N>_style
// an optional static stylesheet. FromMap turns that wire form into typed
// Slot records, Merge lays a route over the canonical Base shape, and Check
// rejects routes whose sequence content and data lengths disagree.
package displayrules
