package terraform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/textscan"
	"github.com/codalotl/skilleval/internal/types"
)

// taggableResources support a tags argument. S3 sub-resources take tags on the parent bucket.
var taggableResources = map[string]bool{
	"aws_instance": true, "aws_s3_bucket": true, "aws_vpc": true, "aws_subnet": true,
	"aws_security_group": true, "aws_lb": true, "aws_ecs_cluster": true, "aws_db_instance": true,
	"aws_ecs_service": true, "aws_ecs_task_definition": true, "aws_cloudwatch_log_group": true,
	"aws_eip": true, "aws_nat_gateway": true, "aws_internet_gateway": true, "aws_route_table": true,
	"aws_lb_target_group": true, "aws_secretsmanager_secret": true, "aws_iam_role": true,
}

var fileMarkers = []string{"main.tf", "variables.tf", "outputs.tf", "data.tf", "locals.tf"}

var (
	snakeCase        = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	genericName      = regexp.MustCompile(`^[a-z]{1,3}\d*$`)
	descriptionAttr  = regexp.MustCompile(`\bdescription\s*=`)
	typeAttr         = regexp.MustCompile(`\btype\s*=`)
	tagsAttr         = regexp.MustCompile(`\btags\s*=`)
	dynamicTags      = regexp.MustCompile(`dynamic\s+"tags?"`)
	topLevelBlock    = regexp.MustCompile(`(?m)^\s*(resource|variable)\b`)
	amiID            = regexp.MustCompile(`ami-[0-9a-f]{8,17}`)
	hashComment      = regexp.MustCompile(`(?m)#.*$`)
	slashComment     = regexp.MustCompile(`(?m)//.*$`)
	twelveDigits     = regexp.MustCompile(`\d{12}`)
	regionString     = regexp.MustCompile(`"(us|eu|ap|sa|ca|me|af)-(east|west|south|north|central|northeast|southeast|southwest|northwest)-\d"`)
	providerOrTF     = regexp.MustCompile(`(?:provider\s+"[^"]+"|terraform)\s*\{`)
	requiredProvider = regexp.MustCompile(`required_providers\s*\{`)
	providerEntry    = regexp.MustCompile(`\w+\s*=\s*\{([^}]*)\}`)
	versionAttr      = regexp.MustCompile(`\bversion\s*=\s*"([^"]*)"`)
	backendBlock     = regexp.MustCompile(`backend\s+"([^"]+)"\s*\{`)
	cloudBlock       = regexp.MustCompile(`\bcloud\s*\{`)
	sensitiveTrue    = regexp.MustCompile(`\bsensitive\s*=\s*true\b`)
	localsBlock      = regexp.MustCompile(`\blocals\s*\{`)
)

// Rules is the Terraform rule battery. rule_6_lifecycle needs a human and is not scored.
var Rules = rules.RuleSet[string]{Rules: []rules.Rule[string]{
	{Name: "rule_1_naming", Check: checkNaming},
	{Name: "rule_2_var_description", Check: checkVarDescription},
	{Name: "rule_3_var_type", Check: checkVarType},
	{Name: "rule_4_outputs", Check: checkOutputs},
	{Name: "rule_5_tags", Check: checkTags},
	{Name: "rule_6_lifecycle", Excluded: true, Check: checkLifecycle},
	{Name: "rule_7_var_separation", Check: checkVarSeparation},
	{Name: "rule_8_file_structure", Check: checkFileStructure},
	{Name: "rule_9_no_hardcoded_ids", Check: checkNoHardcodedIDs},
	{Name: "rule_10_provider_pinned", Check: checkProviderPinned},
	{Name: "rule_11_backend", Check: checkBackend},
	{Name: "rule_12_sensitive", Check: checkSensitive},
	{Name: "rule_13_data_sources", Check: checkDataSources},
	{Name: "rule_14_locals", Check: checkLocals},
}}

func checkNaming(tf string, _ types.Task) rules.Verdict {
	resources := Resources(tf)
	if len(resources) == 0 {
		return rules.Failf("no resources found")
	}
	var violations []string
	for _, r := range resources {
		switch {
		case !snakeCase.MatchString(r.Label2):
			violations = append(violations, fmt.Sprintf("%s.%s: not snake_case", r.Label1, r.Label2))
		case genericName.MatchString(r.Label2):
			violations = append(violations, fmt.Sprintf("%s.%s: too generic/short", r.Label1, r.Label2))
		}
	}
	if len(violations) > 0 {
		return rules.Failf("%s", strings.Join(rules.Head(violations, 5), "; "))
	}
	return rules.Passf("all %d resource names are descriptive snake_case", len(resources))
}

func checkVarDescription(tf string, _ types.Task) rules.Verdict {
	return checkVariableAttr(tf, descriptionAttr, "missing description: %s", "all %d variables have descriptions")
}

func checkVarType(tf string, _ types.Task) rules.Verdict {
	return checkVariableAttr(tf, typeAttr, "missing type: %s", "all %d variables have type constraints")
}

func checkVariableAttr(tf string, attr *regexp.Regexp, failFmt, passFmt string) rules.Verdict {
	vars := Variables(tf)
	if len(vars) == 0 {
		return rules.Failf("no variables defined")
	}
	var missing []string
	for _, v := range vars {
		if !attr.MatchString(v.Body) {
			missing = append(missing, v.Label1)
		}
	}
	if len(missing) > 0 {
		return rules.Failf(failFmt, rules.List(missing))
	}
	return rules.Passf(passFmt, len(vars))
}

func checkOutputs(tf string, _ types.Task) rules.Verdict {
	outputs := Outputs(tf)
	if len(outputs) == 0 {
		return rules.Failf("no outputs defined")
	}
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Label1
	}
	return rules.Passf("%d outputs defined: %s", len(outputs), rules.List(names))
}

func checkTags(tf string, _ types.Task) rules.Verdict {
	resources := Resources(tf)
	if len(resources) == 0 {
		return rules.Failf("no resources found")
	}
	var missing []string
	checked := 0
	for _, r := range resources {
		if !taggableResources[r.Label1] {
			continue
		}
		checked++
		if !tagsAttr.MatchString(r.Body) && !dynamicTags.MatchString(r.Body) {
			missing = append(missing, r.Label1+"."+r.Label2)
		}
	}
	if checked == 0 {
		return rules.Passf("no taggable resources found")
	}
	if len(missing) > 0 {
		return rules.Failf("missing tags on: %s", rules.List(rules.Head(missing, 5)))
	}
	return rules.Passf("all %d taggable resources have tags", checked)
}

func checkLifecycle(string, types.Task) rules.Verdict {
	return rules.Passf("needs_review")
}

// checkVarSeparation fails when a variable block sits between two resource blocks.
func checkVarSeparation(tf string, _ types.Task) rules.Verdict {
	var kinds []string
	for _, m := range topLevelBlock.FindAllStringSubmatch(tf, -1) {
		kinds = append(kinds, m[1])
	}
	hasVariable := false
	for _, k := range kinds {
		if k == "variable" {
			hasVariable = true
		}
	}
	if !hasVariable {
		return rules.Passf("needs_review (no variable blocks found)")
	}

	sawResource, varAfterResource := false, false
	for _, k := range kinds {
		switch k {
		case "resource":
			if varAfterResource {
				return rules.Failf("variables scattered between resource blocks")
			}
			sawResource = true
		case "variable":
			if sawResource {
				varAfterResource = true
			}
		}
	}
	return rules.Passf("variables appear grouped")
}

func checkFileStructure(tf string, _ types.Task) rules.Verdict {
	var found []string
	for _, f := range fileMarkers {
		if strings.Contains(tf, f) {
			found = append(found, f)
		}
	}
	if len(found) > 0 {
		return rules.Passf("file structure mentioned: %s", rules.List(found))
	}
	return rules.Passf("needs_review (single file output)")
}

func checkNoHardcodedIDs(tf string, _ types.Task) rules.Verdict {
	var violations []string
	if amiID.MatchString(tf) {
		violations = append(violations, "hardcoded AMI ID (ami-*)")
	}

	noComments := slashComment.ReplaceAllString(hashComment.ReplaceAllString(tf, ""), "")
	if hasIsolatedDigits(noComments) {
		violations = append(violations, "possible hardcoded AWS account ID (12 digits)")
	}

	if regionString.MatchString(withoutProviderBlocks(tf)) {
		violations = append(violations, "hardcoded region string in resource block")
	}

	if len(violations) > 0 {
		return rules.Failf("%s", strings.Join(violations, "; "))
	}
	return rules.Passf("no hardcoded IDs found")
}

// hasIsolatedDigits reports a run of exactly twelve digits.
func hasIsolatedDigits(text string) bool {
	for offset := 0; offset < len(text); {
		loc := twelveDigits.FindStringIndex(text[offset:])
		if loc == nil {
			return false
		}
		start, end := offset+loc[0], offset+loc[1]
		if (start == 0 || !isDigit(text[start-1])) && (end == len(text) || !isDigit(text[end])) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// withoutProviderBlocks splices every provider and terraform block out of tf. Spans are removed back to front so earlier
// offsets stay valid.
func withoutProviderBlocks(tf string) string {
	matches := providerOrTF.FindAllStringIndex(tf, -1)
	out := tf
	for i := len(matches) - 1; i >= 0; i-- {
		start, headerEnd := matches[i][0], matches[i][1]
		body := textscan.BlockBody(tf, headerEnd-1)
		end := min(headerEnd-1+len(body), len(out))
		if start > len(out) || start > end {
			continue
		}
		out = out[:start] + out[end:]
	}
	return out
}

func checkProviderPinned(tf string, _ types.Task) rules.Verdict {
	loc := requiredProvider.FindStringIndex(tf)
	if loc == nil {
		return rules.Failf("no required_providers block found")
	}
	body := textscan.BlockBody(tf, loc[1]-1)
	for _, m := range providerEntry.FindAllStringSubmatch(body, -1) {
		if v := versionAttr.FindStringSubmatch(m[1]); v != nil {
			return rules.Passf("provider version pinned: %s", v[1])
		}
	}
	return rules.Failf("required_providers block found but no version constraint")
}

func checkBackend(tf string, _ types.Task) rules.Verdict {
	if m := backendBlock.FindStringSubmatch(tf); m != nil {
		return rules.Passf("backend configured: %s", m[1])
	}
	if cloudBlock.MatchString(tf) {
		return rules.Passf("backend configured: terraform cloud")
	}
	return rules.Failf("no backend configuration found")
}

func checkSensitive(tf string, task types.Task) rules.Verdict {
	if !task.Sub("requirements").Bool("sensitive_values") {
		return rules.Passf("n/a (task does not require sensitive values)")
	}
	sensVars := sensitiveNames(Variables(tf))
	sensOutputs := sensitiveNames(Outputs(tf))
	if len(sensVars) == 0 && len(sensOutputs) == 0 {
		return rules.Failf("task requires sensitive values but none marked sensitive = true")
	}
	return rules.Passf("sensitive vars: %s, outputs: %s", rules.List(sensVars), rules.List(sensOutputs))
}

func sensitiveNames(blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		if sensitiveTrue.MatchString(b.Body) {
			out = append(out, b.Label1)
		}
	}
	return out
}

func checkDataSources(tf string, task types.Task) rules.Verdict {
	if !task.Sub("requirements").Bool("data_sources") {
		return rules.Passf("n/a (task does not require data sources)")
	}
	data := DataSources(tf)
	if len(data) == 0 {
		return rules.Failf("task requires data sources but none defined")
	}
	names := make([]string, len(data))
	for i, d := range data {
		names[i] = d.Label1 + "." + d.Label2
	}
	return rules.Passf("%d data sources: %s", len(data), rules.List(names))
}

func checkLocals(tf string, _ types.Task) rules.Verdict {
	if localsBlock.MatchString(tf) {
		return rules.Passf("locals block present")
	}
	return rules.Failf("no locals block defined")
}

// Outcomes check that the resources the task asked for were declared.
var Outcomes = rules.RuleSet[string]{Rules: []rules.Rule[string]{
	{Name: "outcome_resources_present", Check: outcomeResourcesPresent},
	{Name: "outcome_resource_coverage", Check: outcomeResourceCoverage},
}}

func outcomeResourcesPresent(tf string, task types.Task) rules.Verdict {
	expected := task.Strings("resources")
	if len(expected) == 0 {
		return rules.Passf("no expected resources in task")
	}
	actual := ResourceTypes(tf)
	var missing []string
	for _, r := range expected {
		if !actual[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return rules.Passf("all %d expected resources present", len(expected))
	}
	return rules.Failf("missing %d/%d resources: %s", len(missing), len(expected), rules.List(rules.Head(missing, 5)))
}

func outcomeResourceCoverage(tf string, task types.Task) rules.Verdict {
	expected := task.Strings("resources")
	if len(expected) == 0 {
		return rules.Passf("no expected resources in task")
	}
	actual := ResourceTypes(tf)
	found := 0
	for _, r := range expected {
		if actual[r] {
			found++
		}
	}
	pct := float64(found) / float64(len(expected)) * 100
	if pct >= 60 {
		return rules.Passf("%d/%d resources (%.0f%%)", found, len(expected), pct)
	}
	return rules.Failf("only %d/%d resources (%.0f%%), need >=60%%", found, len(expected), pct)
}

var resourceBlockDecl = regexp.MustCompile(`\bresource\s+"[^"]+"\s+"[^"]+"\s*\{`)

// ValidateStructure requires at least one resource block.
func ValidateStructure(tf string) []string {
	if strings.TrimSpace(tf) == "" {
		return []string{"empty terraform configuration"}
	}
	if !resourceBlockDecl.MatchString(tf) {
		return []string{"no resource blocks found"}
	}
	return nil
}
