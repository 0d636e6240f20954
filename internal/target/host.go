package target

import (
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/tangzhangming/aotc/internal/errors"
)

// Host 返回当前机器对应的目标
// 双精度路径依赖 SSE2，缺少时拒绝选择本机目标
func Host() (Target, error) {
	var name string
	switch runtime.GOARCH {
	case "amd64":
		name = "x86_64"
	case "386":
		name = "x86"
	default:
		return nil, errors.Unsupported("host architecture %s is not an x86 target; pass -arch explicitly", runtime.GOARCH)
	}
	if !cpu.X86.HasSSE2 {
		return nil, errors.Unsupported("host CPU lacks SSE2")
	}
	return Lookup(name)
}
