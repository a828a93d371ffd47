package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
)

// GitHubConfig holds settings for the GitHub-backed store.
type GitHubConfig struct {
	Repo   string // repository in owner/name form
	Branch string
	Token  string
}

// GitHubStore persists each document as <name>.json on a repository
// branch. Revisions are blob SHAs, so a conditional save maps directly
// onto the contents API compare-and-swap update, and every save leaves
// a commit with the caller's note as its message.
type GitHubStore struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// NewGitHubStore creates a store writing to the given repository.
func NewGitHubStore(cfg *GitHubConfig) (*GitHubStore, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github store requires an access token")
	}
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github repository must be in owner/name form, got %q", cfg.Repo)
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}

	client := github.NewClient(nil).WithAuthToken(cfg.Token)
	return newGitHubStore(client, owner, repo, branch), nil
}

func newGitHubStore(client *github.Client, owner, repo, branch string) *GitHubStore {
	return &GitHubStore{client: client, owner: owner, repo: repo, branch: branch}
}

// Load fetches <name>.json from the configured branch.
func (s *GitHubStore) Load(ctx context.Context, name string, out any) (Revision, error) {
	opts := &github.RepositoryContentGetOptions{Ref: s.branch}
	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, docPath(name), opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load document %s: %w", name, err)
	}
	if file == nil {
		return "", fmt.Errorf("document %s resolves to a directory, not a file", name)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode document %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return "", fmt.Errorf("failed to decode document %s: %w", name, err)
	}
	return Revision(file.GetSHA()), nil
}

// Save commits the document to the branch. A conditional save passes
// the revision as the file SHA so a concurrent commit surfaces as
// ErrConflict. An unconditional save adopts whatever SHA is current,
// retrying once if a commit lands in between.
func (s *GitHubStore) Save(ctx context.Context, name string, doc any, rev Revision, note string) (Revision, error) {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode document %s: %w", name, err)
	}

	unconditional := rev == ""
	for attempt := 0; ; attempt++ {
		if unconditional {
			cur, err := s.currentSHA(ctx, name)
			if err != nil {
				return "", err
			}
			rev = cur // empty when the file does not exist yet
		}

		newRev, err := s.commit(ctx, name, content, rev, note)
		if err == nil {
			return newRev, nil
		}
		if unconditional && errors.Is(err, ErrConflict) && attempt == 0 {
			continue
		}
		return "", err
	}
}

func (s *GitHubStore) commit(ctx context.Context, name string, content []byte, rev Revision, note string) (Revision, error) {
	if note == "" {
		note = fmt.Sprintf("Update %s", name)
	}
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(note),
		Content: content,
		Branch:  github.String(s.branch),
	}

	var result *github.RepositoryContentResponse
	var resp *github.Response
	var err error
	if rev == "" {
		result, resp, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, docPath(name), opts)
	} else {
		opts.SHA = github.String(string(rev))
		result, resp, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, docPath(name), opts)
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return Revision(result.GetContent().GetSHA()), nil
}

// currentSHA returns the SHA of the stored file, or empty when the
// file does not exist.
func (s *GitHubStore) currentSHA(ctx context.Context, name string) (Revision, error) {
	opts := &github.RepositoryContentGetOptions{Ref: s.branch}
	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, docPath(name), opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to check document %s: %w", name, err)
	}
	if file == nil {
		return "", fmt.Errorf("document %s resolves to a directory, not a file", name)
	}
	return Revision(file.GetSHA()), nil
}

// Ping verifies the repository is reachable with the configured token.
func (s *GitHubStore) Ping(ctx context.Context) error {
	_, _, err := s.client.Repositories.Get(ctx, s.owner, s.repo)
	if err != nil {
		return fmt.Errorf("failed to reach repository %s/%s: %w", s.owner, s.repo, err)
	}
	return nil
}

func docPath(name string) string {
	return name + ".json"
}
