package dockerfile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

var (
	secretName = regexp.MustCompile(`(?i)password|secret|token|api[_-]?key|private[_-]?key|credential|aws[_-]?secret`)
	depFile    = regexp.MustCompile(`package\.json|package-lock\.json|yarn\.lock|requirements\.txt|Pipfile|pyproject\.toml|poetry\.lock|go\.mod|go\.sum|Cargo\.toml|Cargo\.lock|pom\.xml|build\.gradle`)
	exposeLine = regexp.MustCompile(`(?mi)^\s*EXPOSE\s+(.+)`)
	portNumber = regexp.MustCompile(`\b(\d+)\b`)
	fromAs     = regexp.MustCompile(`(?m)^\s*FROM\s+\S+.*?\s+[Aa][Ss]\s+(\S+)`)
	fromLine   = regexp.MustCompile(`(?mi)^\s*FROM\s+(?:--\S+\s+)*(\S+)`)
)

// absolutePathCommands run outside the working directory and may precede WORKDIR.
var absolutePathCommands = []string{
	"adduser", "addgroup", "useradd", "groupadd",
	"chown", "chmod", "setcap",
	"apt-get", "apk add", "yum install", "dnf install",
	"cargo install", "pip install", "npm install -g",
	"python -m venv", "python3 -m venv",
}

var addArchiveExts = []string{".tar", ".tgz", ".gz", ".bz2", ".xz"}

var runtimeImages = map[string][]string{
	"node":   {"node"},
	"python": {"python"},
	"go":     {"golang", "go"},
	"java":   {"openjdk", "eclipse-temurin", "java", "maven", "gradle"},
	"rust":   {"rust"},
	"ruby":   {"ruby"},
}

// Rules is the Dockerfile rule battery. rule_14_dockerignore cannot be judged from the Dockerfile and is not scored.
var Rules = rules.RuleSet[string]{Rules: []rules.Rule[string]{
	{Name: "rule_1_tag", Check: checkTag},
	{Name: "rule_2_user", Check: checkUser},
	{Name: "rule_3_secrets", Check: checkSecrets},
	{Name: "rule_4_multistage", Check: checkMultistage},
	{Name: "rule_5_workdir", Check: checkWorkdir},
	{Name: "rule_6_deps_first", Check: checkDepsFirst},
	{Name: "rule_7_combined_run", Check: checkCombinedRun},
	{Name: "rule_8_apt", Check: checkApt},
	{Name: "rule_9_healthcheck", Check: checkHealthcheck},
	{Name: "rule_10_expose", Check: checkExpose},
	{Name: "rule_11_label", Check: checkLabel},
	{Name: "rule_12_exec_form", Check: checkExecForm},
	{Name: "rule_13_no_add", Check: checkNoAdd},
	{Name: "rule_14_dockerignore", Excluded: true, Check: checkDockerignore},
}}

// Outcomes check the Dockerfile against the task's expected port, build targets and runtime.
var Outcomes = rules.RuleSet[string]{Rules: []rules.Rule[string]{
	{Name: "outcome_correct_port", Check: outcomeCorrectPort},
	{Name: "outcome_target_names", Check: outcomeTargetNames},
	{Name: "outcome_runtime_match", Check: outcomeRuntimeMatch},
}}

func checkTag(df string, _ types.Task) rules.Verdict {
	froms := filter(Parse(df), "FROM")
	if len(froms) == 0 {
		return rules.Failf("no FROM found")
	}
	aliases := map[string]bool{}
	for _, in := range froms {
		if a := stageAlias(in.Args); a != "" {
			aliases[a] = true
		}
	}

	var bad []string
	for _, in := range froms {
		image := fromImage(in.Args)
		lower := strings.ToLower(image)
		if lower == "scratch" || aliases[lower] {
			continue
		}
		_, tag, ok := strings.Cut(image, ":")
		switch {
		case !ok:
			bad = append(bad, image+" (no tag)")
		case strings.EqualFold(tag, "latest"):
			bad = append(bad, image+" (uses :latest)")
		}
	}
	if len(bad) > 0 {
		return rules.Failf("unversioned FROM: %s", strings.Join(bad, ", "))
	}
	return rules.Passf("ok")
}

func checkUser(df string, _ types.Task) rules.Verdict {
	users := filter(Parse(df), "USER")
	if len(users) == 0 {
		return rules.Failf("no USER instruction found")
	}
	for _, in := range users {
		user, _, _ := strings.Cut(strings.TrimSpace(in.Args), ":")
		if u := strings.ToLower(user); u != "root" && u != "0" {
			return rules.Passf("ok (USER %s)", user)
		}
	}
	return rules.Failf("USER is root")
}

func checkSecrets(df string, _ types.Task) rules.Verdict {
	var suspects []string
	for _, in := range filter(Parse(df), "ENV", "ARG") {
		// A bare ARG API_KEY with no default is fine.
		if secretName.MatchString(in.Args) && strings.Contains(in.Args, "=") {
			name, _, _ := strings.Cut(in.Args, "=")
			suspects = append(suspects, in.Op+" "+strings.TrimSpace(name))
		}
	}
	if len(suspects) > 0 {
		return rules.Failf("possible secrets: %s", strings.Join(suspects, ", "))
	}
	return rules.Passf("ok")
}

func checkMultistage(df string, _ types.Task) rules.Verdict {
	n := len(filter(Parse(df), "FROM"))
	if n < 2 {
		return rules.Failf("only %d FROM (need >= 2 for multi-stage)", n)
	}
	return rules.Passf("ok (%d stages)", n)
}

func checkWorkdir(df string, _ types.Task) rules.Verdict {
	instrs := Parse(df)

	// A stage built FROM an earlier stage inherits that stage's WORKDIR.
	stageWorkdir := map[string]bool{}
	alias := ""
	for _, in := range instrs {
		switch in.Op {
		case "FROM":
			alias = stageAlias(in.Args)
		case "WORKDIR":
			if alias != "" {
				stageWorkdir[alias] = true
			}
		}
	}

	seen := false
	for _, in := range instrs {
		switch in.Op {
		case "FROM":
			seen = stageWorkdir[strings.ToLower(fromImage(in.Args))]
		case "WORKDIR":
			seen = true
		case "COPY", "RUN", "ADD":
			if seen {
				continue
			}
			if in.Op == "COPY" && strings.Contains(in.Args, "--from=") {
				continue
			}
			if in.Op == "RUN" && usesAbsolutePaths(in.Args) {
				continue
			}
			return rules.Failf("%s before WORKDIR in a stage", in.Op)
		}
	}
	return rules.Passf("ok")
}

func usesAbsolutePaths(script string) bool {
	for _, words := range shellCommands(script) {
		cmd := strings.ToLower(strings.Join(words, " "))
		for _, c := range absolutePathCommands {
			if strings.Contains(cmd, c) {
				return true
			}
		}
	}
	return false
}

func checkDepsFirst(df string, _ types.Task) rules.Verdict {
	var depCopied, broadFirst, stageDeps, stageBroad bool
	endStage := func() {
		if stageBroad && !stageDeps {
			broadFirst = true
		}
		depCopied = depCopied || stageDeps
		stageDeps, stageBroad = false, false
	}
	for _, in := range Parse(df) {
		if in.Op == "FROM" {
			endStage()
			continue
		}
		if in.Op != "COPY" || strings.Contains(in.Args, "--from=") {
			continue
		}
		args := strings.TrimSpace(in.Args)
		switch {
		case depFile.MatchString(args):
			stageDeps = true
		case strings.Contains(args, ". .") || strings.HasSuffix(args, " .") || strings.HasSuffix(args, " ./"):
			stageBroad = true
		}
	}
	endStage()

	if broadFirst {
		return rules.Failf("broad COPY before dependency file COPY")
	}
	if depCopied {
		return rules.Passf("ok (deps copied before source)")
	}
	return rules.Passf("needs_review (no broad COPY detected)")
}

func checkCombinedRun(df string, _ types.Task) rules.Verdict {
	longest, streak := 0, 0
	for _, in := range Parse(df) {
		if in.Op == "RUN" {
			streak++
			longest = max(longest, streak)
		} else {
			streak = 0
		}
	}
	if longest > 2 {
		return rules.Failf("%d adjacent RUN lines (max 2)", longest)
	}
	return rules.Passf("ok (max %d adjacent)", longest)
}

func checkApt(df string, _ types.Task) rules.Verdict {
	installs, noRecommends, cleanup := false, true, true
	for _, in := range filter(Parse(df), "RUN") {
		cmds := shellCommands(in.Args)
		runInstalls := false
		for _, words := range cmds {
			if !hasWord(words, "apt-get") || !hasWord(words, "install") {
				continue
			}
			runInstalls = true
			if !hasWord(words, "--no-install-recommends") {
				noRecommends = false
			}
		}
		if !runInstalls {
			continue
		}
		installs = true
		if !cleansAptLists(cmds) {
			cleanup = false
		}
	}
	if !installs {
		return rules.Passf("n/a (no apt-get install)")
	}

	var problems []string
	if !noRecommends {
		problems = append(problems, "missing --no-install-recommends")
	}
	if !cleanup {
		problems = append(problems, "missing rm -rf /var/lib/apt/lists/*")
	}
	if len(problems) > 0 {
		return rules.Failf("%s", strings.Join(problems, "; "))
	}
	return rules.Passf("ok")
}

// cleansAptLists reports whether one of cmds is an rm -rf of /var/lib/apt/lists in the same layer.
func cleansAptLists(cmds [][]string) bool {
	for _, words := range cmds {
		if len(words) == 0 || words[0] != "rm" {
			continue
		}
		recursive, target := false, false
		for _, w := range words[1:] {
			if strings.HasPrefix(w, "-") && strings.ContainsAny(w, "rR") && strings.Contains(w, "f") {
				recursive = true
			}
			if strings.HasPrefix(w, "/var/lib/apt/lists") {
				target = true
			}
		}
		if recursive && target {
			return true
		}
	}
	return false
}

func checkHealthcheck(df string, _ types.Task) rules.Verdict {
	if len(filter(Parse(df), "HEALTHCHECK")) > 0 {
		return rules.Passf("ok")
	}
	return rules.Failf("no HEALTHCHECK instruction")
}

func checkExpose(df string, _ types.Task) rules.Verdict {
	exposes := filter(Parse(df), "EXPOSE")
	if len(exposes) == 0 {
		return rules.Failf("no EXPOSE instruction")
	}
	ports := make([]string, 0, len(exposes))
	for _, in := range exposes {
		ports = append(ports, strings.TrimSpace(in.Args))
	}
	return rules.Passf("ok (EXPOSE %s)", strings.Join(ports, ", "))
}

func checkLabel(df string, _ types.Task) rules.Verdict {
	if len(filter(Parse(df), "LABEL")) > 0 {
		return rules.Passf("ok")
	}
	return rules.Failf("no LABEL instruction")
}

func checkExecForm(df string, _ types.Task) rules.Verdict {
	entries := filter(Parse(df), "CMD", "ENTRYPOINT")
	var problems []string
	for _, in := range entries {
		args := strings.TrimSpace(in.Args)
		if !strings.HasPrefix(args, "[") {
			problems = append(problems, fmt.Sprintf("%s uses shell form: %s", in.Op, string(rules.Head([]rune(args), 50))))
		}
	}
	if len(problems) > 0 {
		return rules.Failf("%s", strings.Join(problems, "; "))
	}
	if len(entries) == 0 {
		return rules.Passf("needs_review (no CMD/ENTRYPOINT found)")
	}
	return rules.Passf("ok")
}

func checkNoAdd(df string, _ types.Task) rules.Verdict {
	var bad []string
	for _, in := range filter(Parse(df), "ADD") {
		lower := strings.ToLower(in.Args)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || containsAny(lower, addArchiveExts) {
			continue
		}
		bad = append(bad, string(rules.Head([]rune(strings.TrimSpace(in.Args)), 60)))
	}
	if len(bad) > 0 {
		return rules.Failf("unnecessary ADD: %s", strings.Join(bad, "; "))
	}
	return rules.Passf("ok")
}

func checkDockerignore(string, types.Task) rules.Verdict {
	return rules.Verdict{Outcome: rules.Pass, Detail: rules.NeedsReviewMarker}
}

func outcomeCorrectPort(df string, task types.Task) rules.Verdict {
	expected := task.String("port")
	if !task.Bool("port") {
		expected = task.Sub("requirements").String("port")
	}
	if expected == "" || expected == "0" {
		return rules.Passf("no specific port required by task")
	}

	var ports []string
	for _, m := range exposeLine.FindAllStringSubmatch(df, -1) {
		for _, p := range portNumber.FindAllStringSubmatch(m[1], -1) {
			ports = append(ports, p[1])
		}
	}
	for _, p := range ports {
		if p == expected {
			return rules.Passf("port %s exposed", expected)
		}
	}
	if len(ports) == 0 {
		return rules.Failf("no EXPOSE found, expected port %s", expected)
	}
	return rules.Failf("exposed ports %s, expected %s", rules.List(ports), expected)
}

func outcomeTargetNames(df string, task types.Task) rules.Verdict {
	if !task.Bool("multi_target") {
		return rules.Passf("n/a (not a multi-target build)")
	}
	expected := task.Strings("targets")
	if len(expected) == 0 {
		return rules.Passf("no target names specified in task")
	}

	actual := map[string]bool{}
	for _, m := range fromAs.FindAllStringSubmatch(df, -1) {
		actual[strings.ToLower(m[1])] = true
	}
	var missing []string
	for _, t := range expected {
		if !actual[strings.ToLower(t)] {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return rules.Passf("all %d targets found: %s", len(expected), rules.List(expected))
	}
	found := make([]string, 0, len(actual))
	for t := range actual {
		found = append(found, t)
	}
	sort.Strings(found)
	return rules.Failf("missing targets: %s (found: %s)", rules.List(missing), rules.List(found))
}

func outcomeRuntimeMatch(df string, task types.Task) rules.Verdict {
	runtime := task.String("runtime")
	if runtime == "" || runtime == "multi" {
		return rules.Passf("n/a (no single runtime or multi-service)")
	}
	var images []string
	for _, m := range fromLine.FindAllStringSubmatch(df, -1) {
		images = append(images, m[1])
	}
	if len(images) == 0 {
		return rules.Failf("no FROM instruction found")
	}
	keywords, ok := runtimeImages[runtime]
	if !ok {
		keywords = []string{runtime}
	}
	for _, img := range images {
		if containsAny(strings.ToLower(img), keywords) {
			return rules.Passf("runtime %s matched in FROM %s", quote(runtime), img)
		}
	}
	return rules.Failf("runtime %s not found in FROM images: %s", quote(runtime), rules.List(images))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func quote(s string) string {
	return "'" + s + "'"
}
