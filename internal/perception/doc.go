// Package perception converts camera frames into rover-centric navigation
// data and accumulates the persistent world map.
//
// Responsibilities:
//   - run the warp → classify → frame conversion pipeline once per cycle
//   - replace the rover's per-cycle perception arrays
//   - accumulate classified pixels into the append-only WorldMap
//   - score the world map against the ground-truth ReferenceMap
//
// Dependency rules: perception depends on geometry, vision, rover and config.
// It must not import decision or any transport package.
package perception
