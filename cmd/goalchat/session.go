package main

import (
	"context"
	"fmt"

	"goalchat/models"
	"goalchat/services"
)

// session is everything one chat run needs.
type session struct {
	store   *services.Store
	orch    *services.Orchestrator
	prompts func(ctx context.Context) ([]models.SuggestedPrompt, error)
	user    models.User
	close   func() error
	// loadErr is set when the initial history/context load failed.
	loadErr error
}

func staticPrompts(context.Context) ([]models.SuggestedPrompt, error) {
	return models.SuggestedPrompts, nil
}

// openSession wires the store and orchestrator either to the server or, with
// --local, to the configured repository and assistant in this process.
func openSession(ctx context.Context) (*session, error) {
	var (
		repo     services.Repository
		boundary services.Boundary
		prompts  = staticPrompts
		user     = models.DefaultUser
		closeFn  = func() error { return nil }
	)

	if local {
		r, c, err := services.NewRepository(ctx, settings, logger)
		if err != nil {
			return nil, err
		}
		gen, err := services.NewGenerator(ctx, settings, logger)
		if err != nil {
			_ = c()
			return nil, err
		}
		repo, closeFn = r, c
		boundary = services.NewAssistantService(gen, services.SystemClock{}, services.NewID, logger)
	} else {
		client := services.NewAPIClient(serverURL, logger)
		me, err := client.Me(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot reach goalchat server at %s: %w", serverURL, err)
		}
		repo, boundary, prompts, user = client, client, client.SuggestedPrompts, me
	}

	// A failed load leaves the store empty. The session still opens and the
	// caller reports loadErr.
	store := services.NewStore(repo, services.SystemClock{}, logger)
	loadErr := store.Load(ctx, user.ID)
	return &session{
		store:   store,
		orch:    services.NewOrchestrator(store, boundary, services.SystemClock{}, services.NewID, logger),
		prompts: prompts,
		user:    user,
		close:   closeFn,
		loadErr: loadErr,
	}, nil
}

// Close drains pending writes before releasing the repository.
func (s *session) Close() error {
	s.store.Wait()
	return s.close()
}
