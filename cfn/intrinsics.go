package cfn

// Ref returns a Ref intrinsic pointing at a logical ID, parameter name, or
// pseudo parameter.
func Ref(logicalID string) map[string]any {
	return map[string]any{"Ref": logicalID}
}

// GetAtt returns an Fn::GetAtt intrinsic for an attribute of a declared
// resource.
func GetAtt(logicalID, attribute string) map[string]any {
	return map[string]any{"Fn::GetAtt": []any{logicalID, attribute}}
}

// Sub returns an Fn::Sub intrinsic over the given template string.
func Sub(template string) map[string]any {
	return map[string]any{"Fn::Sub": template}
}

// SubMap returns an Fn::Sub intrinsic with an explicit variable map.
func SubMap(template string, variables map[string]any) map[string]any {
	return map[string]any{"Fn::Sub": []any{template, variables}}
}

// Join returns an Fn::Join intrinsic over the given values.
func Join(delimiter string, values ...any) map[string]any {
	return map[string]any{"Fn::Join": []any{delimiter, values}}
}
