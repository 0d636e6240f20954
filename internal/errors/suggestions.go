package errors

// ============================================================================
// 修复建议
// ============================================================================

var suggestions = map[string][]string{
	E0900: {
		"the instruction tables do not cover this operand combination",
		"check that the IR operand types match the target word size",
	},
	E0901: {
		"the calling convention has no location list for this type class",
		"value types and floats must be declared with their real size",
	},
	E0902: {
		"use `br` for unconditional jumps instead of a conditional branch",
	},
	E0903: {
		"overflow-checked and unsigned-source conversions are not generated by this back end",
		"lower the checked conversion to compare + branch + plain conversion in the front end",
	},
	E0910: {
		"the matching table has no pattern for this IR sequence",
		"`cmp` must be immediately followed by `brif` or `setcc`",
	},
	E0920: {
		"an inconsistent addressing mode reached the encoder; this is a back-end defect",
	},
	E0921: {
		"the branch references a block number that the method does not have",
	},
	E0930: {
		"check the IR unit file against the documented JSON layout",
	},
	E0931: {
		"run with -write-config to generate a commented default configuration",
	},
}

// Suggestions 根据错误码获取修复建议
func Suggestions(code string) []string {
	return suggestions[code]
}
