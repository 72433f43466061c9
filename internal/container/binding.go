package container

// Bind attaches rec to module. Binding has no effect on the graph.
func (r *Registry) Bind(rec *Record, module string) {
	r.mu.Lock()
	rec.module = module
	r.mu.Unlock()
}

// Unbind detaches rec from its module.
func (r *Registry) Unbind(rec *Record) {
	r.mu.Lock()
	rec.module = ""
	r.mu.Unlock()
}

// FindBoundTo returns the present records bound to module in registration
// order.
func (r *Registry) FindBoundTo(module string) []*Record {
	if module == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Record
	for _, rec := range r.records {
		if rec.module == module && !rec.removing {
			out = append(out, rec)
		}
	}
	sortBySeq(out)
	return out
}
