package engine

import (
	"context"
	"time"

	"trade_core/internal/bus"
	"trade_core/internal/executor"
	"trade_core/internal/ledger"
	"trade_core/internal/models"
	"trade_core/internal/risk"
	"trade_core/pkg/logger"
)

const stopDrainWindow = 30 * time.Second

// Supervisor владеет машиной состояний движка. Только он мутирует состояние;
// подсистемы наблюдают StateVar и сами гейтят свою работу.
type Supervisor struct {
	state     *models.StateVar
	commands  chan models.Command
	eventsBus *bus.Bus[models.Event]
	risk      *risk.Manager
	exec      *executor.Executor
	ledger    *ledger.Ledger
}

func NewSupervisor(
	state *models.StateVar,
	commands chan models.Command,
	eventsBus *bus.Bus[models.Event],
	riskMgr *risk.Manager,
	exec *executor.Executor,
	l *ledger.Ledger,
) *Supervisor {
	return &Supervisor{
		state:     state,
		commands:  commands,
		eventsBus: eventsBus,
		risk:      riskMgr,
		exec:      exec,
		ledger:    l,
	}
}

// Run обрабатывает команды и фатальные события. Стартует в Stopped: переход
// в Running только по явной команде, не автоматически.
func (s *Supervisor) Run(ctx context.Context) {
	logger.Info("supervisor running, state=%s", s.state.Get())

	fatals := s.eventsBus.Subscribe("supervisor")
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-s.commands:
			if !ok {
				return
			}
			ack := s.dispatch(ctx, cmd.Type)
			if cmd.Reply != nil {
				cmd.Reply <- ack
			}
		case ev, ok := <-fatals.C():
			if !ok {
				return
			}
			if _, fatal := ev.(models.PersistenceDivergenceEvent); fatal {
				// консистентность потеряна: никакие новые ордера, пока
				// оператор не разберётся
				s.transition(models.StateHalted)
			}
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, cmd models.CommandType) models.CommandAck {
	st := s.state.Get()

	switch cmd {
	case models.CmdStart:
		if st != models.StateStopped {
			return deny("already " + st.String())
		}
		s.transition(models.StateRunning)
		return models.CommandAck{OK: true}

	case models.CmdStop:
		if st == models.StateStopped || st == models.StateStopping {
			return deny("already " + st.String())
		}
		s.stop(ctx)
		return models.CommandAck{OK: true}

	case models.CmdPause:
		if st != models.StateRunning {
			return deny("can only pause while running, state=" + st.String())
		}
		s.transition(models.StatePaused)
		return models.CommandAck{OK: true}

	case models.CmdResume:
		if st != models.StatePaused {
			return deny("can only resume while paused, state=" + st.String())
		}
		s.transition(models.StateRunning)
		return models.CommandAck{OK: true}

	case models.CmdResetDrawdown:
		switch st {
		case models.StateHalted:
			s.risk.ResetDrawdown(ctx)
			s.transition(models.StateRunning)
			return models.CommandAck{OK: true}
		case models.StateRunning:
			if !s.risk.ResetDrawdown(ctx) {
				return deny("drawdown halt is not active")
			}
			return models.CommandAck{OK: true}
		default:
			return deny("nothing to reset, state=" + st.String())
		}
	}
	return deny("unknown command")
}

// stop — транзитная фаза Stopping: закрываем все позиции по рынку, ждём
// дренажа экзекьютора в отведённое окно, затем Stopped в любом случае.
func (s *Supervisor) stop(ctx context.Context) {
	s.transition(models.StateStopping)

	closing := s.risk.CloseAllPositions(ctx)
	logger.Info("stopping: %d closing orders emitted", closing)

	drainCtx, cancel := context.WithTimeout(ctx, stopDrainWindow)
	drained := s.exec.Drain(drainCtx)
	cancel()

	if !drained {
		for _, p := range s.ledger.OpenPositions() {
			logger.Error("stop timeout orphan: %s %s qty=%v", p.Pair, p.Side, p.Quantity)
		}
	}
	s.transition(models.StateStopped)
}

func (s *Supervisor) transition(to models.EngineState) {
	from := s.state.Get()
	if from == to {
		return
	}
	s.state.Set(to)
	logger.Info("engine state: %s -> %s", from, to)
	s.eventsBus.Publish(models.StateChangedEvent{From: from, To: to})
}

func deny(reason string) models.CommandAck {
	return models.CommandAck{OK: false, Reason: reason}
}
