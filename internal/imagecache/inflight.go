package imagecache

import (
	"context"
	"strconv"
)

// flight 记录同一地址、同一代的一次共享解析。共享解析使用与调用方解耦的 ctx，
// 只有当所有等待者都离开时才会被取消。
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// await 合并同一地址的并发冷加载；每个调用方只等待自己的 ctx，
// 提前离开的调用方得到 TaskCancelled，不影响其余等待者。
func (s *Store) await(ctx context.Context, address string, gen uint64) (*Image, error) {
	key := strconv.FormatUint(gen, 10) + "|" + address

	f := s.join(ctx, key)
	defer s.leave(key, f)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.resolve(f.ctx, address, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Image), nil
	case <-ctx.Done():
		return nil, cancelledError(address, ctx.Err())
	}
}

func (s *Store) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.flights[key]
	if f == nil {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: flightCtx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

func (s *Store) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	s.group.Forget(key)
}
