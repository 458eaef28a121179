package workflow

// Builtin template names.
const (
	TypePRWithReview         = "pr_with_review"
	TypePRWithReport         = "pr_with_report"
	TypeFullDevelopmentCycle = "full_development_cycle"
	TypeCreateBranch         = "create_branch"
	TypeBranchAndPR          = "branch_and_pr"
	TypeFullBranchWorkflow   = "full_branch_workflow"
)

// Placeholders shared by the builtin templates.
const (
	refPRNumber = "$task:create_pr.output.number"
	refPRURL    = "$task:create_pr.output.url"
	refBranch   = "$task:create_branch.output.branch"
)

// BuiltinTemplates returns the workflow templates shipped with the engine.
func BuiltinTemplates() []Template {
	return []Template{
		prWithReview(),
		prWithReport(),
		fullDevelopmentCycle(),
		createBranch(),
		branchAndPR(),
		fullBranchWorkflow(),
	}
}

// prWithReview: create_pr -> code_review
func prWithReview() Template {
	return Template{
		Name:        TypePRWithReview,
		Description: "Open a pull request and review it.",
		Builtin:     true,
		Tasks: []TaskSpec{
			{ID: "create_pr", Type: "create_pr"},
			{
				ID: "code_review", Type: "code_review", DependsOn: []string{"create_pr"},
				DefaultParameters: map[string]any{"pr_number": refPRNumber},
			},
		},
	}
}

// prWithReport: create_pr -> generate_report
func prWithReport() Template {
	return Template{
		Name:        TypePRWithReport,
		Description: "Open a pull request and publish a report about it.",
		Builtin:     true,
		Tasks: []TaskSpec{
			{ID: "create_pr", Type: "create_pr"},
			{
				ID: "generate_report", Type: "generate_report", DependsOn: []string{"create_pr"},
				DefaultParameters: map[string]any{"pr_number": refPRNumber, "pr_url": refPRURL},
			},
		},
	}
}

// fullDevelopmentCycle: create_pr -> {analyze_code, code_review} -> merge_pr
func fullDevelopmentCycle() Template {
	return Template{
		Name:        TypeFullDevelopmentCycle,
		Description: "Open a pull request, analyze and review it in parallel, then merge.",
		Builtin:     true,
		Tasks: []TaskSpec{
			{ID: "create_pr", Type: "create_pr"},
			{
				ID: "analyze_code", Type: "analyze_code", DependsOn: []string{"create_pr"},
				DefaultParameters: map[string]any{"pr_number": refPRNumber},
			},
			{
				ID: "code_review", Type: "code_review", DependsOn: []string{"create_pr"},
				DefaultParameters: map[string]any{"pr_number": refPRNumber},
			},
			{
				ID: "merge_pr", Type: "merge_pr", DependsOn: []string{"analyze_code", "code_review"},
				DefaultParameters: map[string]any{"pr_number": refPRNumber},
			},
		},
	}
}

func createBranch() Template {
	return Template{
		Name:        TypeCreateBranch,
		Description: "Create a branch.",
		Builtin:     true,
		Tasks:       []TaskSpec{{ID: "create_branch", Type: "create_branch"}},
	}
}

// branchAndPR: create_branch -> create_pr
func branchAndPR() Template {
	return Template{
		Name:        TypeBranchAndPR,
		Description: "Create a branch and open a pull request from it.",
		Builtin:     true,
		Tasks: []TaskSpec{
			{ID: "create_branch", Type: "create_branch"},
			{
				ID: "create_pr", Type: "create_pr", DependsOn: []string{"create_branch"},
				DefaultParameters: map[string]any{"head": refBranch},
			},
		},
	}
}

// fullBranchWorkflow: create_branch -> create_pr -> generate_report
func fullBranchWorkflow() Template {
	return Template{
		Name:        TypeFullBranchWorkflow,
		Description: "Create a branch, open a pull request from it and report on it.",
		Builtin:     true,
		Tasks: []TaskSpec{
			{ID: "create_branch", Type: "create_branch"},
			{
				ID: "create_pr", Type: "create_pr", DependsOn: []string{"create_branch"},
				DefaultParameters: map[string]any{"head": refBranch},
			},
			{
				ID: "generate_report", Type: "generate_report", DependsOn: []string{"create_pr"},
				DefaultParameters: map[string]any{"pr_number": refPRNumber, "pr_url": refPRURL},
			},
		},
	}
}
