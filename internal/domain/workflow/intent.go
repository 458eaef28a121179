package workflow

// Intent is a classified user request. Classification happens outside the
// engine; only the mapping to a template lives here.
type Intent string

const (
	IntentReviewPR      Intent = "review_pr"
	IntentReportPR      Intent = "report_pr"
	IntentFullCycle     Intent = "full_cycle"
	IntentCreateBranch  Intent = "create_branch"
	IntentBranchAndPR   Intent = "branch_and_pr"
	IntentBranchPRCycle Intent = "branch_pr_report"
)

var intentTemplates = map[Intent]string{
	IntentReviewPR:      TypePRWithReview,
	IntentReportPR:      TypePRWithReport,
	IntentFullCycle:     TypeFullDevelopmentCycle,
	IntentCreateBranch:  TypeCreateBranch,
	IntentBranchAndPR:   TypeBranchAndPR,
	IntentBranchPRCycle: TypeFullBranchWorkflow,
}

// TemplateFor returns the workflow type for a classified intent.
func TemplateFor(i Intent) (string, bool) {
	name, ok := intentTemplates[i]
	return name, ok
}
