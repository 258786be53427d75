//go:build !linux && !darwin

package poller

import "errors"

// ErrPlatformNotSupported 在缺少 epoll/kqueue 的平台上返回。
var ErrPlatformNotSupported = errors.New("poller: platform not supported (requires linux or darwin)")

func New() (Poller, error) {
	return nil, ErrPlatformNotSupported
}
