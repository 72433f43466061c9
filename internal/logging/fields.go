package logging

func cloneFields(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// mergeFields layers context fields, persistent fields and call fields; later
// layers win on key collisions.
func mergeFields(ctxFields, persistent map[string]interface{}, call []LogField) map[string]interface{} {
	if len(ctxFields) == 0 && len(persistent) == 0 && len(call) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(ctxFields)+len(persistent)+len(call))
	for k, v := range ctxFields {
		merged[k] = v
	}
	for k, v := range persistent {
		merged[k] = v
	}
	for _, f := range call {
		merged[f.Key] = f.Value
	}
	return merged
}
