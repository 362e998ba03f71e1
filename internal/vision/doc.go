// Package vision turns a forward camera frame into an overhead view and
// classifies it into navigable, obstacle and sample masks.
//
// Responsibilities:
//   - solve and apply the fixed perspective homography (perspective.go)
//   - threshold frames into binary masks (classify.go)
//
// Dependency rules: vision depends only on image types and gonum. It knows
// nothing about rover pose, world maps or decisions.
package vision
