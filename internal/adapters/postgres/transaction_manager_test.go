//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

func TestTransactionManager_Commit(t *testing.T) {
	pool := setupTestDB(t)
	txMgr := NewTransactionManager(pool)
	repo := NewEvolutionRepository(pool)

	run := models.NewEvolutionRun("evo_it_tx_commit", "tx", "reviews", models.StrategyStandard, 2)

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if err := repo.CreateRun(txCtx, run); err != nil {
			return err
		}
		return repo.SaveIteration(txCtx, run.ID, models.IterationRecord{Iteration: 0, Prompt: "p {text}", Accuracy: 0.5})
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if _, err := repo.GetRun(context.Background(), run.ID); err != nil {
		t.Fatalf("run should be committed: %v", err)
	}
	iterations, err := repo.GetIterations(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetIterations failed: %v", err)
	}
	if len(iterations) != 1 {
		t.Errorf("expected 1 iteration, got %d", len(iterations))
	}
}

func TestTransactionManager_Rollback(t *testing.T) {
	pool := setupTestDB(t)
	txMgr := NewTransactionManager(pool)
	repo := NewEvolutionRepository(pool)

	run := models.NewEvolutionRun("evo_it_tx_rollback", "tx", "reviews", models.StrategyStandard, 2)
	testErr := errors.New("test error")

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if err := repo.CreateRun(txCtx, run); err != nil {
			return err
		}
		return testErr
	})
	if !errors.Is(err, testErr) {
		t.Fatalf("expected test error, got %v", err)
	}

	_, err = repo.GetRun(context.Background(), run.ID)
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("run should have been rolled back, got %v", err)
	}
}

func TestTransactionManager_PanicRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	txMgr := NewTransactionManager(pool)
	repo := NewEvolutionRepository(pool)

	run := models.NewEvolutionRun("evo_it_tx_panic", "tx", "reviews", models.StrategyStandard, 2)

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if err := repo.CreateRun(txCtx, run); err != nil {
			return err
		}
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected error from panicking transaction")
	}

	if _, err := repo.GetRun(context.Background(), run.ID); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("run should have been rolled back, got %v", err)
	}
}

func TestTransactionManager_NestedReusesOuter(t *testing.T) {
	pool := setupTestDB(t)
	txMgr := NewTransactionManager(pool)
	repo := NewEvolutionRepository(pool)

	run := models.NewEvolutionRun("evo_it_tx_nested", "tx", "reviews", models.StrategyStandard, 2)
	testErr := errors.New("outer fails")

	err := txMgr.WithTransaction(context.Background(), func(outer context.Context) error {
		outerTx := GetTx(outer)
		if err := txMgr.WithTransaction(outer, func(inner context.Context) error {
			if GetTx(inner) != outerTx {
				t.Error("inner call should reuse the outer transaction")
			}
			return repo.CreateRun(inner, run)
		}); err != nil {
			return err
		}
		return testErr
	})
	if !errors.Is(err, testErr) {
		t.Fatalf("expected outer error, got %v", err)
	}

	if _, err := repo.GetRun(context.Background(), run.ID); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("inner write should roll back with the outer transaction, got %v", err)
	}
}
