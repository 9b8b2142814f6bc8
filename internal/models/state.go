package models

import "sync/atomic"

// EngineState — состояние движка. Мутирует только супервизор.
type EngineState int32

const (
	StateStopped EngineState = iota
	StateRunning
	StatePaused
	StateStopping // транзитная фаза между Stop-командой и Stopped
	StateHalted
)

func (s EngineState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateHalted:
		return "halted"
	}
	return "unknown"
}

// StateVar — разделяемое наблюдаемое состояние движка. Пишет только
// супервизор; остальные подсистемы читают и сами гейтят свою работу.
type StateVar struct {
	v int32
}

func NewStateVar() *StateVar { return &StateVar{v: int32(StateStopped)} }

func (s *StateVar) Set(st EngineState) { atomic.StoreInt32(&s.v, int32(st)) }
func (s *StateVar) Get() EngineState   { return EngineState(atomic.LoadInt32(&s.v)) }

type CommandType string

const (
	CmdStart         CommandType = "start"
	CmdStop          CommandType = "stop"
	CmdPause         CommandType = "pause"
	CmdResume        CommandType = "resume"
	CmdResetDrawdown CommandType = "reset_drawdown"
)

// Command — команда от внешнего коллаборатора (чат-бот, дашборд).
// Reply обязателен: отправитель ждёт подтверждение или причину отказа.
type Command struct {
	Type  CommandType
	Reply chan CommandAck
}

type CommandAck struct {
	OK     bool
	Reason string // причина отказа при OK=false, например "already running"
}
