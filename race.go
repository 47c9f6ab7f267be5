// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package cleanq

// RaceEnabled is true when the race detector is active.
// Used by tests to skip concurrent shared-memory ring tests: the rings
// protect their payload words through acquire-release ordering on a
// separate word, which the race detector cannot observe.
const RaceEnabled = true
