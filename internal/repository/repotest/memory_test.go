package repotest

import (
	"testing"

	"github.com/sakif/recipe-finder/internal/repository"
)

func TestMemory(t *testing.T) {
	Run(t, func(t *testing.T) repository.SavedRecipeRepository {
		return NewMemory()
	})
}
