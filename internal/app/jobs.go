package app

import (
	"context"

	"go.uber.org/zap"
)

// 后台任务名
const (
	JobRoomSweep   = "room-sweep"
	JobPartyExpiry = "party-expiry"
	JobTokenPrune  = "token-prune"
)

// registerJobs 注册清理任务，表达式为空的任务跳过
func (a *App) registerJobs() error {
	jc := a.cfg.Jobs
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{JobRoomSweep, jc.RoomSweep, a.sweepRooms},
		{JobPartyExpiry, jc.PartyExpiry, a.expireParties},
		{JobTokenPrune, jc.TokenPrune, a.pruneTokens},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if err := a.scheduler.AddFunc(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

// sweepRooms 回收空置超过 jobs.room_idle 的房间
func (a *App) sweepRooms(context.Context) error {
	if n := a.socket.SweepEmptyRooms(a.cfg.Jobs.RoomIdle); n > 0 {
		a.log.Info("empty rooms swept", zap.Int("rooms", n))
	}
	return nil
}

// expireParties 删除长期无活动且无人在线的观影房间
func (a *App) expireParties(ctx context.Context) error {
	n, err := a.parties.ExpireIdle(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		a.log.Info("idle parties expired", zap.Int("parties", n))
	}
	return nil
}

// pruneTokens 清理已自然过期的吊销记录
func (a *App) pruneTokens(context.Context) error {
	if n := a.tokens.Prune(); n > 0 {
		a.log.Debug("revocations pruned", zap.Int("tokens", n), zap.Int("remaining", a.tokens.RevokedCount()))
	}
	return nil
}
