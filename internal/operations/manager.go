package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loadcell/internal/config"
	"loadcell/internal/infrastructure"
)

// Manager orchestrates operation execution
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
}

// NewManager creates a new operation manager. A nil tracer disables telemetry.
func NewManager(registry *Registry, cfg *Config, tracer *OperationTracer) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg == nil {
		cfg = NewConfig()
	}

	return &Manager{
		registry: registry,
		config:   cfg,
		tracer:   tracer,
	}
}

// RegisterStage registers a Step with the operation
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the registry for accessing registered stages
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute processes one logger file through every registered stage.
// The response is returned even on failure so callers can see which stage stopped the run.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	if req.ID == "" {
		if runID := infrastructure.GetRunID(ctx); runID != "" {
			req.ID = runID
		} else {
			ctx, req.ID = infrastructure.NewRunContext(ctx)
		}
	}

	state := NewOperationState(req.ID)
	state.Input = req.Input
	if m.config.KeepSnapshots {
		state.EnableSnapshots()
	}

	ctx, span := m.tracer.TraceOperationExecution(ctx, req.ID, req)
	defer span.End()

	paths, err := config.PathsFor(req.Input, req.OutputDir, m.config.OutputFormat)
	if err != nil {
		opErr := NewValidationError(StageIDLoad, err.Error())
		state.Fail(opErr)
		m.logOperationError(ctx, req.ID, opErr)
		return m.createResponse(state), opErr
	}
	state.Paths = paths

	steps := m.registry.List()
	if len(steps) == 0 {
		opErr := NewFatalError("no stages registered", nil)
		state.Fail(opErr)
		return m.createResponse(state), opErr
	}
	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	slog.InfoContext(ctx, "executing_full_pipeline",
		slog.String("operation_id", req.ID),
		slog.String("input", paths.Input),
		slog.Int("step_count", len(steps)))

	state.Start()
	err = m.executeSequential(ctx, state, steps)
	if err != nil {
		state.Fail(err)
	} else {
		state.Complete()
	}

	m.tracer.RecordOperationCompletion(ctx, span, state.Summary(), err)
	return m.createResponse(state), err
}

// executeSequential executes steps one by one. Each stage consumes the
// series produced by the previous one, so nothing runs in parallel here.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "operation_cancelled",
				slog.String("operation_id", state.ID),
				slog.String("stage", step.ID()))
			m.skipRemaining(state, steps[i:], "operation cancelled")
			return NewCancellationError(step.ID(), err)
		}

		slog.InfoContext(ctx, "executing_stage",
			slog.String("operation_id", state.ID),
			slog.String("stage", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		if err := m.executeStage(ctx, state, step); err != nil {
			m.logStageError(ctx, state.ID, step.ID(), err)
			m.skipRemaining(state, steps[i+1:], fmt.Sprintf("Previous stage %s failed", step.ID()))
			return err
		}
	}

	slog.InfoContext(ctx, "all_stages_completed",
		slog.String("operation_id", state.ID))
	return nil
}

// executeStage validates and runs a single stage. Stages have no deadline of
// their own; only the caller's context stops them.
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		slog.ErrorContext(ctx, "stage_state_not_found",
			slog.String("operation_id", state.ID),
			slog.String("stage", step.ID()))
		return NewFatalError("stage state not found", nil)
	}

	if err := step.Validate(state); err != nil {
		slog.WarnContext(ctx, "validation_failed",
			slog.String("operation_id", state.ID),
			slog.String("stage", step.ID()),
			slog.String("error", err.Error()))
		stepState.Fail(err)
		return NewValidationError(step.ID(), err.Error())
	}

	stageCtx, span := m.tracer.TraceStageExecution(ctx, state.ID, step.ID())
	defer span.End()

	stepState.Start()
	start := time.Now()
	err := step.Execute(stageCtx, state)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			err = NewCancellationError(step.ID(), err)
		} else {
			err = WrapError(err, step.ID(), "stage execution failed")
		}
		stepState.Fail(err)
		m.tracer.RecordStageCompletion(stageCtx, span, step.ID(), duration, state.Series().Len(), err)
		return err
	}

	series := state.Series()
	stepState.Complete(fmt.Sprintf("%d samples, %d missing", series.Len(), series.MissingCount()))
	m.tracer.RecordStageCompletion(stageCtx, span, step.ID(), duration, series.Len(), nil)
	m.logStageComplete(ctx, state.ID, step.ID(), duration)
	return nil
}

// skipRemaining marks stages that will not run
func (m *Manager) skipRemaining(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		if stepState := state.GetStage(step.ID()); stepState != nil && stepState.GetStatus() == StepStatusPending {
			stepState.Skip(reason)
		}
	}
}

// createResponse creates a operation response from state
func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	resp := &OperationResponse{
		ID:       state.ID,
		Status:   state.Status,
		Duration: state.Duration(),
		Steps:    state.Steps,
		Summary:  state.Summary(),
	}

	if state.Error != nil {
		resp.Error = state.Error.Error()
	}
	if m.config.KeepSnapshots {
		resp.Snapshots = state.Snapshots()
	}

	return resp
}

func (m *Manager) logStageComplete(ctx context.Context, operationID, stageID string, duration time.Duration) {
	slog.InfoContext(ctx, "stage_completed_successfully",
		slog.String("operation_id", operationID),
		slog.String("stage", stageID),
		slog.Duration("duration", duration))
}

func (m *Manager) logStageError(ctx context.Context, operationID, stageID string, err error) {
	slog.ErrorContext(ctx, "stage_execution_failed",
		slog.String("operation_id", operationID),
		slog.String("stage", stageID),
		slog.String("error_type", string(GetErrorType(err))),
		slog.String("error", err.Error()))
}

func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	slog.ErrorContext(ctx, "operation_failed",
		slog.String("operation_id", operationID),
		slog.String("error", err.Error()))
}
