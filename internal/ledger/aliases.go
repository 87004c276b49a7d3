package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pbaille/ots/internal/domain"
)

// AliasParams describes an alias to add
type AliasParams struct {
	Name        string
	TaskCode    string
	Description string
	ProjectID   *int64
	TaskID      *int64
}

// AddAlias registers an alias, replacing any alias with the same name
func (l *Ledger) AddAlias(ctx context.Context, p AliasParams) (*domain.Alias, error) {
	if p.Name == "" {
		return nil, &domain.FormatError{Input: p.Name, Reason: "alias name is required"}
	}

	alias := &domain.Alias{
		Name:        p.Name,
		Description: p.Description,
		TaskRef: domain.TaskRef{
			TaskCode:  p.TaskCode,
			ProjectID: p.ProjectID,
			TaskID:    p.TaskID,
		},
	}
	l.aliases[p.Name] = alias
	l.printf("Alias %s added.", p.Name)

	if err := l.refreshAlias(ctx, alias); err != nil && !errors.Is(err, domain.ErrRemoteUnavailable) {
		l.log.Warn().Err(err).Str("alias", alias.Name).Msg("remote refresh failed")
		l.printf("Warning: could not update remote data for alias %s: %v", alias.Name, err)
	}
	return alias, nil
}

func (l *Ledger) refreshAlias(ctx context.Context, alias *domain.Alias) error {
	if alias.TaskCode == "" && alias.TaskID == nil && alias.ProjectID == nil {
		return nil
	}
	gw, err := l.remote()
	if err != nil {
		return err
	}
	return alias.TaskRef.Refresh(ctx, gw)
}

// DeleteAlias removes an alias
func (l *Ledger) DeleteAlias(name string) error {
	if _, ok := l.aliases[name]; !ok {
		return fmt.Errorf("delete %q: %w", name, domain.ErrAliasNotFound)
	}
	delete(l.aliases, name)
	l.printf("Alias %s deleted.", name)
	return nil
}

// Alias returns the alias with the given name
func (l *Ledger) Alias(name string) (*domain.Alias, error) {
	alias, ok := l.aliases[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrAliasNotFound)
	}
	return alias, nil
}

// Aliases returns all aliases sorted by name
func (l *Ledger) Aliases() []*domain.Alias {
	aliases := make([]*domain.Alias, 0, len(l.aliases))
	for _, a := range l.aliases {
		aliases = append(aliases, a)
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i].Name < aliases[j].Name })
	return aliases
}

// GenerateFromAlias returns a new timesheet for the alias, not yet filed in the ledger
func (l *Ledger) GenerateFromAlias(name string) (*domain.Timesheet, error) {
	alias, err := l.Alias(name)
	if err != nil {
		return nil, err
	}
	return alias.Generate(l.Today()), nil
}

// RefreshAliases re-reads remote metadata for every alias, printing progress.
// Failures of single aliases are reported and counted, not returned.
func (l *Ledger) RefreshAliases(ctx context.Context) (failed int, err error) {
	if _, err := l.remote(); err != nil {
		return 0, err
	}
	aliases := l.Aliases()
	for i, alias := range aliases {
		l.printf("[%d/%d] Updating alias %s", i+1, len(aliases), alias.Name)
		if err := l.refreshAlias(ctx, alias); err != nil {
			failed++
			l.log.Warn().Err(err).Str("alias", alias.Name).Msg("remote refresh failed")
			l.printf("Warning: could not update remote data for alias %s: %v", alias.Name, err)
		}
	}
	return failed, nil
}
