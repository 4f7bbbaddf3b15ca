// Package interaction 把用户输入转换为交互事件
//
// 本地输入由 Poller 在每次 Update 中轮询 ebiten；远程输入通过
// Feed 的 websocket 端点接收。两者都只产生 Event，由上层决定如何响应。
package interaction

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// Kind 交互类型
type Kind string

const (
	KindPointerMove Kind = "pointermove"
	KindPointerDown Kind = "pointerdown"
	KindKey         Kind = "keydown"
	KindWheel       Kind = "wheel"
	KindTouch       Kind = "touchstart"
	KindRemote      Kind = "remote"
)

// Event 一次交互
type Event struct {
	Kind   Kind   `json:"type"`
	Source string `json:"source,omitempty"`
}

// Handler 交互回调
type Handler func(Event)

// Snapshot 一帧的输入状态
type Snapshot struct {
	CursorX, CursorY int
	ButtonPressed    bool // 本帧有鼠标键刚按下
	KeyPressed       bool // 本帧有键刚按下
	WheelX, WheelY   float64
	TouchStarted     bool // 本帧有新的触摸点
}

// Poller 轮询本地输入，每帧最多产生一个事件
type Poller struct {
	handler Handler
	prev    Snapshot
	primed  bool
}

// NewPoller 创建轮询器
func NewPoller(h Handler) *Poller {
	return &Poller{handler: h}
}

// Update 在 ebiten.Game.Update 中调用
func (p *Poller) Update() {
	p.Observe(readInput())
}

// Observe 对比上一帧，产生事件时返回 true
// 第一帧只记录光标位置
func (p *Poller) Observe(cur Snapshot) bool {
	prev, primed := p.prev, p.primed
	p.prev, p.primed = cur, true

	kind, ok := detect(prev, cur, primed)
	if !ok {
		return false
	}
	if p.handler != nil {
		p.handler(Event{Kind: kind, Source: "local"})
	}
	return true
}

func detect(prev, cur Snapshot, primed bool) (Kind, bool) {
	switch {
	case cur.TouchStarted:
		return KindTouch, true
	case cur.ButtonPressed:
		return KindPointerDown, true
	case cur.KeyPressed:
		return KindKey, true
	case cur.WheelX != 0 || cur.WheelY != 0:
		return KindWheel, true
	case primed && (cur.CursorX != prev.CursorX || cur.CursorY != prev.CursorY):
		return KindPointerMove, true
	}
	return "", false
}

func readInput() Snapshot {
	x, y := ebiten.CursorPosition()
	wx, wy := ebiten.Wheel()
	return Snapshot{
		CursorX: x,
		CursorY: y,
		ButtonPressed: inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) ||
			inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight) ||
			inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonMiddle),
		KeyPressed:   len(inpututil.AppendJustPressedKeys(nil)) > 0,
		WheelX:       wx,
		WheelY:       wy,
		TouchStarted: len(inpututil.AppendJustPressedTouchIDs(nil)) > 0,
	}
}
