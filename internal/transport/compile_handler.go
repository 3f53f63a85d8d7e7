package transport

import (
	"context"
	"errors"

	"github.com/vk/webbundler/internal/bundlerr"
	"github.com/vk/webbundler/internal/orchestrator"
)

func (s *session) handleCompile(payload CompilePayload) {
	var files []orchestrator.FileUpdate
	for path, f := range payload.Modules {
		files = append(files, orchestrator.FileUpdate{Path: path, Code: f.Code})
	}

	req := orchestrator.CompileRequest{
		Files:           files,
		Template:        payload.Template,
		LogLevel:        payload.LogLevel,
		HasFileResolver: payload.HasFileResolver,
	}

	result, err := s.bundler.Compile(context.Background(), req)
	if err != nil {
		// EntryPointUnresolved is detected by type, not message text
		// (bundlerr.EntryPointUnresolved's own contract): no candidate
		// resolved at all, which spec.md §7/§8 S5 treats as an empty
		// project, not an error — the host gets an empty-state action
		// instead of show-error, and still reaches done.
		var entryErr *bundlerr.EntryPointUnresolved
		if errors.As(err, &entryErr) {
			s.send(KindAction, ActionPayload{Action: "empty-state"})
			s.send(KindDone, DonePayload{})
			return
		}
		s.sendError(err)
		return
	}

	if result.FullReload {
		s.send(KindRefreshOut, nil)
		return
	}

	s.send(KindStart, nil)
	if result.HTMLOnly {
		s.send(KindState, StatePayload{Modules: map[string]string{}, Entry: ""})
	} else {
		s.send(KindState, StatePayload{Modules: result.ModuleMap, Entry: result.EntryPath})
	}

	if err := result.Evaluate(); err != nil {
		s.sendError(err)
		return
	}
	s.send(KindDone, DonePayload{})
	s.send(KindSuccess, nil)
}

func (s *session) handleRefresh() {
	s.bundler.Reset()
	s.send(KindRefreshOut, nil)
}

func (s *session) handleEvaluateCommand(payload EvaluatePayload) {
	result, err := s.bundler.Eval(payload.Command)
	if err != nil {
		s.sendError(err)
		return
	}
	s.send(KindConsole, ConsolePayload{Level: "log", Args: []string{result}})
}
