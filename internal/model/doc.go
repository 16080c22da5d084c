// Package model provides the resource and group types shared by every wro
// package.
//
// This package contains type definitions and content hashing only. All other
// internal packages import model; model imports nothing internal. This keeps
// the model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - A Group's resource order is significant and is never reordered
//   - Models are built once by a loader and only read afterwards
//   - Digests are lowercase hex strings; an input hash is order-sensitive
package model
