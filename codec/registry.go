// Package codec 调制解调器可用的符号编解码器注册表
//
// 调制本身不在本模块内，编解码器只需在负载字节与样本字节流之间转换。
// raw 编解码器始终注册。
package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sdsai/airqso-go/pkg/interfaces"
)

var (
	mu     sync.RWMutex
	codecs = map[string]interfaces.Codec{}
)

// Register 按名称注册编解码器，同名重复注册会覆盖之前的
func Register(c interfaces.Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[c.Name] = c
}

// Lookup 按名称查找编解码器
func Lookup(name string) (interfaces.Codec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return interfaces.Codec{}, fmt.Errorf("unknown codec %q (available: %v)", name, namesLocked())
	}
	return c, nil
}

// Names 按字母顺序列出已注册的编解码器
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(Raw)
}
