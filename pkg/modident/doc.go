// SPDX-License-Identifier: MPL-2.0

// Package modident defines module identities and the equality policies used to
// decide when two identities refer to the same loadable module.
//
// An identity is a logical name plus an optional version. Which of those parts
// participate in equality is a policy decision made by a Comparer; the default
// policy (ByName) ignores the version and the letter case of the name.
package modident
