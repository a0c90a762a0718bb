package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/teranos/loom/errors"
)

// StartOptions are the user-configurable knobs for a pipeline run. They are
// persisted whole under the pipeline-options key and replicated to peer
// instances, so the next start can reuse the previous configuration.
//
// ExtraArgs holds one shell-quoted string exactly as the user typed it;
// tokenization happens at submission time so a malformed quote fails the
// start request instead of corrupting the persisted value.
type StartOptions struct {
	Category        string `json:"category,omitempty" yaml:"category" toml:"category"`
	PageLimit       int    `json:"page_limit,omitempty" yaml:"page_limit" toml:"page_limit"`
	ArticleLimit    int    `json:"article_limit,omitempty" yaml:"article_limit" toml:"article_limit"`
	SkipEnrichment  bool   `json:"skip_enrichment,omitempty" yaml:"skip_enrichment" toml:"skip_enrichment"`
	SkipCommunities bool   `json:"skip_communities,omitempty" yaml:"skip_communities" toml:"skip_communities"`
	SkipEmbeddings  bool   `json:"skip_embeddings,omitempty" yaml:"skip_embeddings" toml:"skip_embeddings"`
	DebugLog        bool   `json:"debug_log,omitempty" yaml:"debug_log" toml:"debug_log"`
	ExtraArgs       string `json:"extra_args,omitempty" yaml:"extra_args" toml:"extra_args"`
}

// StartRequest is the wire form of StartOptions submitted to the supervisor.
// It matches StartOptions except that the extra-args string has been
// tokenized into argv form.
type StartRequest struct {
	Category        string   `json:"category,omitempty"`
	PageLimit       int      `json:"page_limit,omitempty"`
	ArticleLimit    int      `json:"article_limit,omitempty"`
	SkipEnrichment  bool     `json:"skip_enrichment,omitempty"`
	SkipCommunities bool     `json:"skip_communities,omitempty"`
	SkipEmbeddings  bool     `json:"skip_embeddings,omitempty"`
	DebugLog        bool     `json:"debug_log,omitempty"`
	ExtraArgs       []string `json:"extra_args,omitempty"`
}

// TokenizeExtraArgs splits the shell-quoted extra-args string into argv
// tokens, respecting quotes the way a shell does. An empty or blank string
// yields nil.
func (o StartOptions) TokenizeExtraArgs() ([]string, error) {
	if strings.TrimSpace(o.ExtraArgs) == "" {
		return nil, nil
	}
	args, err := shellquote.Split(o.ExtraArgs)
	if err != nil {
		return nil, errors.WrapInvalidRequest(err, "failed to tokenize extra arguments")
	}
	return args, nil
}

// ToRequest converts the options into the supervisor submission payload.
// Fails if ExtraArgs cannot be tokenized.
func (o StartOptions) ToRequest() (StartRequest, error) {
	args, err := o.TokenizeExtraArgs()
	if err != nil {
		return StartRequest{}, err
	}
	return StartRequest{
		Category:        o.Category,
		PageLimit:       o.PageLimit,
		ArticleLimit:    o.ArticleLimit,
		SkipEnrichment:  o.SkipEnrichment,
		SkipCommunities: o.SkipCommunities,
		SkipEmbeddings:  o.SkipEmbeddings,
		DebugLog:        o.DebugLog,
		ExtraArgs:       args,
	}, nil
}

// Validate rejects option combinations the supervisor would refuse anyway,
// so the user hears about them before a request is spent.
func (o StartOptions) Validate() error {
	if o.PageLimit < 0 {
		return errors.NewInvalidRequestError("page limit must be >= 0, got %d", o.PageLimit)
	}
	if o.ArticleLimit < 0 {
		return errors.NewInvalidRequestError("article limit must be >= 0, got %d", o.ArticleLimit)
	}
	if _, err := o.TokenizeExtraArgs(); err != nil {
		return err
	}
	return nil
}

// LoadOptionsFile reads StartOptions from a YAML, TOML, or JSON file,
// selected by extension. Used by `pipeline start --options-file`.
func LoadOptionsFile(path string) (StartOptions, error) {
	var opts StartOptions

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "failed to read options file %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, errors.Wrapf(err, "failed to parse options YAML %s", path)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &opts); err != nil {
			return opts, errors.Wrapf(err, "failed to parse options TOML %s", path)
		}
	case ".json":
		if err := json.Unmarshal(data, &opts); err != nil {
			return opts, errors.Wrapf(err, "failed to parse options JSON %s", path)
		}
	default:
		return opts, errors.Newf("unsupported options file extension %q (want .yaml, .toml, or .json)", filepath.Ext(path))
	}

	if err := opts.Validate(); err != nil {
		return StartOptions{}, errors.Wrapf(err, "invalid options in %s", path)
	}
	return opts, nil
}
