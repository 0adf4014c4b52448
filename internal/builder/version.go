package builder

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

const shortHashLen = 7

// DescribeVersion mirrors `git describe --tags --long --always` for the
// repository containing dir: <tag>-<distance>-g<hash>, or the short hash when
// no tag is reachable. Outside a repository it returns "".
func DescribeVersion(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil // no commits yet
	}
	if err != nil {
		return "", err
	}

	tagged, err := taggedCommits(repo)
	if err != nil {
		return "", err
	}

	short := head.Hash().String()[:shortHashLen]
	if len(tagged) == 0 {
		return short, nil
	}

	commits, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return "", err
	}
	defer commits.Close()

	for distance := 0; ; distance++ {
		c, err := commits.Next()
		if err == io.EOF {
			return short, nil
		}
		if err != nil {
			return "", err
		}
		if tag, ok := tagged[c.Hash]; ok {
			return fmt.Sprintf("%s-%d-g%s", tag, distance, short), nil
		}
	}
}

// taggedCommits maps commit hashes to tag names, annotated tags peeled
func taggedCommits(repo *git.Repository) (map[plumbing.Hash]string, error) {
	tags, err := repo.Tags()
	if err != nil {
		return nil, err
	}
	defer tags.Close()

	tagged := make(map[plumbing.Hash]string)
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		hash, err := repo.ResolveRevision(plumbing.Revision(ref.Name().String()))
		if err != nil {
			return nil // tag pointing at something other than a commit
		}
		name := ref.Name().Short()
		if prev, ok := tagged[*hash]; !ok || name > prev {
			tagged[*hash] = name
		}
		return nil
	})
	return tagged, err
}
