package dockerfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

const goodDockerfile = `FROM node:18-alpine AS builder
WORKDIR /app
COPY package.json package-lock.json ./
RUN npm ci
COPY . .
RUN npm run build

FROM node:18-alpine AS runtime
LABEL maintainer="team@example.com"
WORKDIR /app
RUN apt-get update && apt-get install -y --no-install-recommends curl \
    && rm -rf /var/lib/apt/lists/*
COPY --from=builder /app/dist ./dist
USER node
EXPOSE 3000
HEALTHCHECK CMD ["curl", "-f", "http://localhost:3000/health"]
CMD ["node", "dist/server.js"]`

func verdict(t *testing.T, rs rules.RuleSet[string], name, df string, task types.Task) rules.Verdict {
	t.Helper()
	for _, r := range rs.Evaluate(df, task) {
		if r.Name == name {
			return r.Verdict
		}
	}
	t.Fatalf("unknown rule %s", name)
	return rules.Verdict{}
}

func TestRootUserScenario(t *testing.T) {
	t.Parallel()
	df, err := Extract("Here you go:\n```dockerfile\nFROM node:18\nUSER root\nCMD [\"node\",\"x.js\"]\n```\n")
	require.NoError(t, err)
	require.Equal(t, "FROM node:18\nUSER root\nCMD [\"node\",\"x.js\"]", df)

	require.Equal(t, rules.Pass, verdict(t, Rules, "rule_1_tag", df, nil).Outcome)
	require.Equal(t, rules.Failf("USER is root"), verdict(t, Rules, "rule_2_user", df, nil))
	require.Equal(t, rules.Passf("ok"), verdict(t, Rules, "rule_12_exec_form", df, nil))
}

func TestExtractCascade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "untagged fence",
			text: "```\nFROM alpine:3.19\nCMD [\"sh\"]\n```",
			want: "FROM alpine:3.19\nCMD [\"sh\"]",
		},
		{
			name: "header",
			text: "Here is the Dockerfile:\n\nFROM python:3.12-slim\nWORKDIR /app\n\nCMD [\"python\"]\n\n\nThanks",
			want: "FROM python:3.12-slim\nWORKDIR /app\n\nCMD [\"python\"]",
		},
		{
			name: "plain",
			text: "FROM golang:1.22 AS build\nRUN go build\n\nThat's the file.",
			want: "FROM golang:1.22 AS build\nRUN go build",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(tt.text)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFailures(t *testing.T) {
	t.Parallel()

	_, err := Extract("  ")
	require.EqualError(t, err, "empty output")

	_, err = Extract("FROM x")
	require.EqualError(t, err, "could not extract Dockerfile from output")

	var extractErr *rules.ExtractionError
	require.ErrorAs(t, err, &extractErr)
}

func TestParseJoinsContinuations(t *testing.T) {
	t.Parallel()
	got := Parse("# comment\nfrom alpine:3.19\nRUN apk add \\\n    curl\n\nCMD [\"sh\"]")
	require.Equal(t, []Instruction{
		{Op: "FROM", Args: "alpine:3.19"},
		{Op: "RUN", Args: "apk add      curl"},
		{Op: "CMD", Args: `["sh"]`},
	}, got)
}

func TestShellCommands(t *testing.T) {
	t.Parallel()
	got := shellCommands(`apt-get update && apt-get install -y "lib foo" ; echo 'a && b' || true`)
	require.Equal(t, [][]string{
		{"apt-get", "update"},
		{"apt-get", "install", "-y", "lib foo"},
		{"echo", "a && b"},
		{"true"},
	}, got)
}

func TestGoodDockerfile(t *testing.T) {
	t.Parallel()
	task := types.Task{"port": float64(3000), "multi_target": true, "targets": []any{"builder", "runtime"}, "runtime": "node"}

	results := Rules.Evaluate(goodDockerfile, task)
	for _, r := range results {
		assert.Truef(t, r.Passed(), "%s: %s", r.Name, r.Detail)
	}
	passed, scored := rules.Tally(results)
	require.Equal(t, 13, passed)
	require.Equal(t, 13, scored)
	require.True(t, rules.NeedsReview(results))

	require.Equal(t, "ok (USER node)", verdict(t, Rules, "rule_2_user", goodDockerfile, task).Detail)
	require.Equal(t, "ok (2 stages)", verdict(t, Rules, "rule_4_multistage", goodDockerfile, task).Detail)
	require.Equal(t, "ok (deps copied before source)", verdict(t, Rules, "rule_6_deps_first", goodDockerfile, task).Detail)
	require.Equal(t, "ok (EXPOSE 3000)", verdict(t, Rules, "rule_10_expose", goodDockerfile, task).Detail)

	require.Equal(t, "port 3000 exposed", verdict(t, Outcomes, "outcome_correct_port", goodDockerfile, task).Detail)
	require.Equal(t, "all 2 targets found: ['builder', 'runtime']", verdict(t, Outcomes, "outcome_target_names", goodDockerfile, task).Detail)
	require.Equal(t, "runtime 'node' matched in FROM node:18-alpine", verdict(t, Outcomes, "outcome_runtime_match", goodDockerfile, task).Detail)
	require.Empty(t, ValidateStructure(goodDockerfile))
}

func TestRuleFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule   string
		df     string
		detail string
	}{
		{"rule_1_tag", "FROM python\nFROM base:latest AS x\nFROM scratch\nFROM x", "unversioned FROM: python (no tag), base:latest (uses :latest)"},
		{"rule_2_user", "FROM alpine:3.19", "no USER instruction found"},
		{"rule_3_secrets", "FROM alpine:3.19\nARG API_KEY\nENV DB_PASSWORD=hunter2", "possible secrets: ENV DB_PASSWORD"},
		{"rule_4_multistage", "FROM alpine:3.19", "only 1 FROM (need >= 2 for multi-stage)"},
		{"rule_5_workdir", "FROM ubuntu:22.04\nRUN apt-get update\nCOPY app /app", "COPY before WORKDIR in a stage"},
		{"rule_6_deps_first", "FROM node:20\nWORKDIR /app\nCOPY . .\nRUN npm ci", "broad COPY before dependency file COPY"},
		{"rule_7_combined_run", "FROM alpine:3.19\nRUN a\nRUN b\nRUN c", "3 adjacent RUN lines (max 2)"},
		{"rule_8_apt", "FROM debian:12\nRUN apt-get update && apt-get install -y curl", "missing --no-install-recommends; missing rm -rf /var/lib/apt/lists/*"},
		{"rule_9_healthcheck", "FROM alpine:3.19", "no HEALTHCHECK instruction"},
		{"rule_10_expose", "FROM alpine:3.19", "no EXPOSE instruction"},
		{"rule_11_label", "FROM alpine:3.19", "no LABEL instruction"},
		{"rule_12_exec_form", "FROM node:20\nCMD node server.js", "CMD uses shell form: node server.js"},
		{"rule_13_no_add", "FROM alpine:3.19\nADD app.tar.gz /opt/\nADD src /app/src", "unnecessary ADD: src /app/src"},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, rules.Failf("%s", tt.detail), verdict(t, Rules, tt.rule, tt.df, nil))
		})
	}
}

func TestRuleEdgeCases(t *testing.T) {
	t.Parallel()

	require.True(t, verdict(t, Rules, "rule_5_workdir", "FROM node:18 AS base\nWORKDIR /app\nFROM base AS dev\nCOPY . .", nil).Passed())
	require.True(t, verdict(t, Rules, "rule_5_workdir", "FROM node:18\nCOPY --from=build /out /out", nil).Passed())
	require.True(t, verdict(t, Rules, "rule_1_tag", "FROM --platform=$BUILDPLATFORM golang:1.22 AS build", nil).Passed())

	require.Equal(t, rules.Passf("n/a (no apt-get install)"), verdict(t, Rules, "rule_8_apt", `FROM alpine:3.19
RUN echo "apt-get install" && true`, nil))
	require.Equal(t, rules.Passf("needs_review (no broad COPY detected)"), verdict(t, Rules, "rule_6_deps_first", "FROM alpine:3.19", nil))
	require.Equal(t, rules.Passf("needs_review (no CMD/ENTRYPOINT found)"), verdict(t, Rules, "rule_12_exec_form", "FROM alpine:3.19", nil))
	require.Equal(t, rules.Passf("ok (max 2 adjacent)"), verdict(t, Rules, "rule_7_combined_run", "FROM a:1\nRUN a\nRUN b\nFROM b:1\nRUN c", nil))
}

func TestOutcomeFailures(t *testing.T) {
	t.Parallel()

	task := types.Task{"requirements": map[string]any{"port": float64(8080)}}
	require.Equal(t, rules.Failf("exposed ports ['80', '443'], expected 8080"),
		verdict(t, Outcomes, "outcome_correct_port", "FROM nginx:1.25\nEXPOSE 80 443", task))
	require.Equal(t, rules.Failf("no EXPOSE found, expected port 8080"),
		verdict(t, Outcomes, "outcome_correct_port", "FROM nginx:1.25", task))

	task = types.Task{"multi_target": true, "targets": []any{"dev", "prod"}}
	require.Equal(t, rules.Failf("missing targets: ['prod'] (found: ['dev'])"),
		verdict(t, Outcomes, "outcome_target_names", "FROM node:18 AS dev", task))

	task = types.Task{"runtime": "go"}
	require.Equal(t, rules.Failf("runtime 'go' not found in FROM images: ['python:3.12']"),
		verdict(t, Outcomes, "outcome_runtime_match", "FROM python:3.12", task))

	require.Equal(t, rules.Passf("no specific port required by task"), verdict(t, Outcomes, "outcome_correct_port", "FROM a:1", nil))
	require.Equal(t, rules.Passf("n/a (not a multi-target build)"), verdict(t, Outcomes, "outcome_target_names", "FROM a:1", nil))
	require.Equal(t, rules.Passf("n/a (no single runtime or multi-service)"), verdict(t, Outcomes, "outcome_runtime_match", "FROM a:1", nil))
}

func TestEvaluateWrittenFile(t *testing.T) {
	t.Parallel()
	raw := `{"result":"I wrote the file.","permission_denials":[{"tool_name":"Write","tool_input":{"file_path":"Dockerfile","content":"FROM alpine:3.19\n\nRUN apk add curl\n\nCMD [\"sh\"]"}}]}`

	fields := Evaluator{}.Evaluate(raw, nil)
	require.Equal(t, "True", fields["extraction_ok"])
	require.Equal(t, "True", fields["structure_valid"])
	require.Equal(t, "True", fields["rule_1_tag_pass"])
	require.Equal(t, "13", fields["scored_rules"])
}

func TestEvaluateExtractionFailure(t *testing.T) {
	t.Parallel()
	fields := Evaluator{}.Evaluate(`{"result":"Sorry, I can't help with that."}`, nil)

	require.Equal(t, "False", fields["extraction_ok"])
	require.Equal(t, "could not extract Dockerfile from output", fields["extraction_error"])
	require.Equal(t, "False", fields["rule_1_tag_pass"])
	require.Equal(t, failedDetail, fields["rule_14_dockerignore_detail"])
	require.Equal(t, "0", fields["auto_score"])
	require.Equal(t, "13", fields["scored_rules"])
	require.Equal(t, "False", fields["needs_manual_review"])
	require.Equal(t, "0", fields["outcome_score"])

	for _, col := range (Evaluator{}).Columns() {
		require.Contains(t, fields, col)
	}
}
