// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package atf

import (
	"errors"
	"syscall"
)

// isENOSPC reports whether err (possibly wrapped by the os package)
// ultimately came from ENOSPC, distinguishing DiskFull from a generic
// IOFailure (spec §7).
func isENOSPC(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
