package audio

import "sync"

// sampleRing 连接回调式设备与阻塞式读写的样本环形缓冲区
//
// 回调一侧只使用非阻塞的 overwrite/drain，读写一侧使用阻塞的 read/write。
// close 会唤醒所有阻塞中的调用。
type sampleRing struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []int16
	head   int // 下一个读取位置
	count  int
	closed bool
}

func newSampleRing(size int) *sampleRing {
	r := &sampleRing{buf: make([]int16, max(size, 1))}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *sampleRing) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.count, r.closed = 0, 0, false
}

func (r *sampleRing) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}

func (r *sampleRing) push(s int16) {
	r.buf[(r.head+r.count)%len(r.buf)] = s
	r.count++
}

func (r *sampleRing) pop() int16 {
	s := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return s
}

// read 阻塞直到有数据或已关闭，关闭时返回 false
func (r *sampleRing) read(dst []int16) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return 0, false
	}
	n := min(len(dst), r.count)
	for i := 0; i < n; i++ {
		dst[i] = r.pop()
	}
	r.cond.Broadcast()
	return n, true
}

// write 阻塞直到全部写入或已关闭
func (r *sampleRing) write(src []int16) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	written := 0
	for written < len(src) {
		for r.count == len(r.buf) && !r.closed {
			r.cond.Wait()
		}
		if r.closed {
			return written, false
		}
		for written < len(src) && r.count < len(r.buf) {
			r.push(src[written])
			written++
		}
		r.cond.Broadcast()
	}
	return written, true
}

// waitEmpty 阻塞直到缓冲区被取空或已关闭
func (r *sampleRing) waitEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.count > 0 && !r.closed {
		r.cond.Wait()
	}
}

// overwrite 非阻塞写入，满时丢弃最旧的样本
func (r *sampleRing) overwrite(src []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range src {
		if r.count == len(r.buf) {
			r.pop()
		}
		r.push(s)
	}
	r.cond.Broadcast()
}

// drain 非阻塞读取，不足部分由调用方补静音
func (r *sampleRing) drain(dst []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(len(dst), r.count)
	for i := 0; i < n; i++ {
		dst[i] = r.pop()
	}
	if n > 0 {
		r.cond.Broadcast()
	}
	return n
}
