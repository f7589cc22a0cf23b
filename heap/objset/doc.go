// Package objset tracks which chunks belong to which object set, so a
// collector can enumerate live chunks per logical heap.
//
// The registry is written by the allocator as chunks are granted and
// released, and read by the collector through a snapshot scan. The scan
// takes the registry lock only while copying membership; visiting the
// snapshot afterwards is lock-free, so chunks registered strictly after
// the snapshot starts are excluded rather than visited zero or two
// times.
package objset
