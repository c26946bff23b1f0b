package mapping

import (
	"errors"
	"fmt"
	"strings"

	"entity-loader/internal/diagnostic"
	"entity-loader/internal/importerr"
	"entity-loader/internal/match"
	"entity-loader/internal/rules"
	"entity-loader/internal/schema"
	"entity-loader/internal/transform"
)

// Validate checks a mapping definition against the entity registry and the
// transform registry. Every problem is reported; nothing stops at the first
// error. Interactive transforms without parameters are warnings here and
// errors in Compile.
func Validate(def *MappingDefinition, reg *schema.Registry, transforms *transform.Registry) *diagnostic.Diagnostics {
	c := newCompiler(def, reg, transforms, false)
	c.run()

	return c.diags
}

// compiler walks a definition once, recording diagnostics and building the
// compiled entities as it goes.
type compiler struct {
	def        *MappingDefinition
	reg        *schema.Registry
	transforms *transform.Registry
	strict     bool

	diags    *diagnostic.Diagnostics
	entities []*CompiledEntity
	order    []string
	cycle    *importerr.DependencyCycleError
}

func newCompiler(def *MappingDefinition, reg *schema.Registry, transforms *transform.Registry, strict bool) *compiler {
	if transforms == nil {
		transforms = transform.NewRegistry()
	}

	return &compiler{
		def:        def,
		reg:        reg,
		transforms: transforms,
		strict:     strict,
		diags:      &diagnostic.Diagnostics{},
	}
}

func (c *compiler) run() {
	if c.def == nil {
		c.diags.AddError("mapping_is_nil", "mapping definition is nil", "", "")
		return
	}

	if c.reg == nil {
		c.diags.AddError("registry_is_nil", "entity registry is nil", "", "")
		return
	}

	applyDefaults(c.def)

	if len(c.def.Mappings) == 0 {
		c.diags.AddError("no_mappings", "mapping document declares no entity mappings", "", "")
		return
	}

	c.validateFlow()

	for i := range c.def.Mappings {
		if ce := c.compileEntity(i); ce != nil {
			c.entities = append(c.entities, ce)
		}
	}

	c.checkExecutionOrders()
	c.checkPivotOwners()
	c.orderEntities()
}

func (c *compiler) validateFlow() {
	fc := c.def.Flow
	if fc == nil {
		return
	}

	if fc.ErrorPolicy != "" && !fc.ErrorPolicy.IsValid() {
		c.diags.AddError("invalid_error_policy",
			fmt.Sprintf("error_policy %q is not one of stop, continue", fc.ErrorPolicy), "", "flow_config")
	}

	if fc.ChunkSize < 0 {
		c.diags.AddError("invalid_chunk_size",
			fmt.Sprintf("chunk_size must not be negative, got %d", fc.ChunkSize), "", "flow_config")
	}
}

func (c *compiler) compileEntity(i int) *CompiledEntity {
	m := &c.def.Mappings[i]
	label := m.Label(i)

	if strings.TrimSpace(m.Model) == "" {
		c.diags.AddError("missing_model", "entity mapping must name a model", label, "")
		return nil
	}

	et, ok := c.reg.Describe(m.Model)
	if !ok {
		c.diags.AddError("unknown_model", fmt.Sprintf("model %q is not a registered entity type", m.Model),
			label, "", suggest(m.Model, c.reg.Names())...)

		return nil
	}

	if !m.Type.IsValid() {
		c.diags.AddError("invalid_mapping_type",
			fmt.Sprintf("type %q is not one of model, pivot_sync", m.Type), label, "")

		return nil
	}

	c.validateOptions(m, label)

	if len(m.Columns) == 0 {
		c.diags.AddError("no_columns", "entity mapping declares no columns", label, "")
		return nil
	}

	ce := &CompiledEntity{Index: i, Label: label, Mapping: m, Entity: et}
	groups := make(map[string]*RelationGroup)
	targets := make(map[string]bool, len(m.Columns))

	for j := range m.Columns {
		col := c.compileColumn(ce, j)
		if col == nil {
			continue
		}

		if key := col.Path.String(); targets[key] {
			c.diags.AddWarning("duplicate_target", "target is mapped more than once; the last column wins", label, col.Target())
		} else {
			targets[key] = true
		}

		ce.Columns = append(ce.Columns, col)

		if col.Path.IsAttribute() {
			ce.Attributes = append(ce.Attributes, col)
			continue
		}

		c.place(ce, groups, col)
	}

	for _, g := range ce.Groups {
		c.finalizeGroup(ce, g)
	}

	if m.IsPivot() {
		c.compilePivot(ce)
	} else {
		c.compileUniqueKey(ce)
		c.checkRequired(ce)
	}

	return ce
}

func (c *compiler) validateOptions(m *EntityMapping, label string) {
	o := m.Options

	if !o.DuplicateStrategy.IsValid() {
		c.diags.AddError("invalid_duplicate_strategy",
			fmt.Sprintf("duplicate_strategy %q is not one of error, skip, update", o.DuplicateStrategy), label, "")
	}

	if !o.RelationSync.IsValid() {
		c.diags.AddError("invalid_relation_sync",
			fmt.Sprintf("relation_sync %q is not one of keep, delete", o.RelationSync), label, "")
	}

	switch {
	case m.IsPivot() && !o.SyncStrategy.IsValid():
		c.diags.AddError("invalid_sync_strategy",
			fmt.Sprintf("sync_strategy %q is not one of sync, attach", o.SyncStrategy), label, "")
	case !m.IsPivot() && o.SyncStrategy != "":
		c.diags.AddWarning("sync_strategy_ignored", "sync_strategy only applies to pivot_sync mappings", label, "")
	case m.IsPivot() && !o.UniqueKey.IsEmpty():
		c.diags.AddWarning("unique_key_ignored", "unique_key does not apply to pivot_sync mappings", label, "")
	}
}

func (c *compiler) compileColumn(ce *CompiledEntity, j int) *CompiledColumn {
	cm := &ce.Mapping.Columns[j]
	label := ce.Label

	if strings.TrimSpace(cm.Target) == "" {
		c.diags.AddError("missing_target", fmt.Sprintf("column %d must specify a target", j+1), label, cm.Source)
		return nil
	}

	path, err := ParseTargetPath(cm.Target)
	if err != nil {
		c.diags.AddError("invalid_target_path", err.Error(), label, cm.Target)
		return nil
	}

	if strings.TrimSpace(cm.Source) == "" && cm.Default == nil {
		c.diags.AddError("missing_source", "column must specify a source (or a default)", label, cm.Target)
		return nil
	}

	col := &CompiledColumn{Index: j, Mapping: cm, Path: path}
	ok := true

	chain, err := c.transforms.Compile(cm.Transforms)
	if err != nil {
		ok = c.transformError(err, label, cm.Target) && ok
	}

	col.Chain = chain

	set, err := rules.Parse(cm.ValidationRule)
	if err != nil {
		c.diags.AddError("invalid_validation_rule", err.Error(), label, cm.Target)

		ok = false
	}

	col.Rules = set

	if !c.resolvePath(ce, col) {
		return nil
	}

	if !c.checkLookup(ce, col) {
		ok = false
	}

	if !ok {
		return nil
	}

	return col
}

// transformError records a chain compilation failure. It returns true when
// the column can still be used (warnings only).
func (c *compiler) transformError(err error, label, target string) bool {
	var (
		unknown     *transform.UnknownTransformError
		interactive *transform.InteractiveError
	)

	switch {
	case errors.As(err, &unknown):
		var suggestions []string
		if unknown.Suggestion != "" {
			suggestions = []string{unknown.Suggestion}
		}

		c.diags.AddError("unknown_transform", fmt.Sprintf("transform %q is not registered", unknown.Name),
			label, target, suggestions...)
	case errors.As(err, &interactive):
		if !c.strict {
			c.diags.AddWarning("interactive_transform",
				fmt.Sprintf("transform %q needs parameters that will be asked before the run", interactive.Name),
				label, target)

			return true
		}

		c.diags.AddError("interactive_transform", interactive.Error(), label, target)
	default:
		c.diags.AddError("invalid_transform", err.Error(), label, target)
	}

	return false
}

// resolvePath walks the relation segments of col through the registry.
func (c *compiler) resolvePath(ce *CompiledEntity, col *CompiledColumn) bool {
	label := ce.Label
	current := ce.Entity
	rels := col.Path.Relations()

	for k, seg := range rels {
		if seg.Name == PivotSegment && k == len(rels)-1 && k > 0 {
			if col.Relations[k-1].Kind != schema.ManyToMany {
				c.diags.AddError("pivot_outside_many_to_many",
					fmt.Sprintf("%q segment requires a many-to-many relation, %s is %s",
						PivotSegment, col.Relations[k-1].Name, col.Relations[k-1].Kind),
					label, col.Target())

				return false
			}

			col.Pivot = true

			break
		}

		d, ok := current.Relation(seg.Name)
		if !ok {
			c.diags.AddError("unknown_relation",
				fmt.Sprintf("%s has no relation %q", current.Name, seg.Name),
				label, col.Target(), suggest(seg.Name, current.RelationNames())...)

			return false
		}

		if seg.IsArray && !d.IsCollection() {
			c.diags.AddError("array_on_single_relation",
				fmt.Sprintf("%q marker requires a collection relation, %s is %s", "*", d.Name, d.Kind),
				label, col.Target())

			return false
		}

		next, ok := c.reg.Describe(d.Target)
		if !ok {
			c.diags.AddError("unknown_model", fmt.Sprintf("relation %s targets unknown entity %q", d.Name, d.Target),
				label, col.Target())

			return false
		}

		col.Relations = append(col.Relations, d)
		current = next
	}

	name := col.Path.Attribute()
	col.Entity = current

	if col.Pivot {
		d := col.Relations[len(col.Relations)-1]
		if a, ok := d.PivotAttribute(name); ok {
			col.Attribute = a
			col.Declared = true

			return true
		}

		names := make([]string, 0, len(d.PivotAttributes))
		for _, a := range d.PivotAttributes {
			names = append(names, a.Name)
		}

		col.Attribute = schema.Attribute{Name: name}
		c.diags.AddWarning("unknown_pivot_attribute",
			fmt.Sprintf("%s declares no association attribute %q; the column is ignored", d.Name, name),
			label, col.Target(), suggest(name, names)...)

		return true
	}

	if a, ok := current.Attribute(name); ok {
		col.Attribute = a
		col.Declared = true

		return true
	}

	col.Attribute = schema.Attribute{Name: name}

	if name == schema.PrimaryKey {
		col.Declared = true

		return true
	}

	if _, isRel := current.Relation(name); isRel {
		c.diags.AddError("relation_as_attribute",
			fmt.Sprintf("%q is a relation of %s; target one of its attributes, e.g. %s.<attribute>", name, current.Name, name),
			label, col.Target())

		return false
	}

	c.diags.AddWarning("unknown_attribute",
		fmt.Sprintf("%s has no attribute %q; the column is ignored", current.Name, name),
		label, col.Target(), suggest(name, current.AttributeNames())...)

	return true
}

func (c *compiler) checkLookup(ce *CompiledEntity, col *CompiledColumn) bool {
	rl := col.Mapping.RelationLookup
	if rl == nil {
		return true
	}

	label := ce.Label

	if col.Pivot {
		c.diags.AddError("invalid_relation_lookup", "relation_lookup does not apply to association attributes",
			label, col.Target())

		return false
	}

	if col.Path.IsAttribute() && !ce.Mapping.IsPivot() {
		c.diags.AddError("invalid_relation_lookup", "relation_lookup requires a relation target",
			label, col.Target())

		return false
	}

	if strings.TrimSpace(rl.Field) == "" {
		c.diags.AddError("missing_lookup_field", "relation_lookup must name a field", label, col.Target())
		return false
	}

	if !col.Entity.HasAttribute(rl.Field) {
		c.diags.AddError("unknown_lookup_field",
			fmt.Sprintf("%s has no attribute %q to look up by", col.Entity.Name, rl.Field),
			label, col.Target(), suggest(rl.Field, col.Entity.AttributeNames())...)

		return false
	}

	return true
}

// place files a relation column into the group tree of its entity mapping.
func (c *compiler) place(ce *CompiledEntity, groups map[string]*RelationGroup, col *CompiledColumn) {
	var parent *RelationGroup

	for d := 1; d <= len(col.Relations); d++ {
		key := col.Path.Prefix(d)
		rel := col.Relations[d-1]

		g, ok := groups[key]
		if !ok {
			target, _ := c.reg.Describe(rel.Target)
			g = &RelationGroup{Key: key, Relation: rel, Target: target, Depth: d}
			groups[key] = g

			if parent == nil {
				ce.Groups = append(ce.Groups, g)
			} else {
				parent.Children = append(parent.Children, g)
			}
		}

		seg := col.Path.Segments[d-1]
		g.Optional = g.Optional || seg.IsOptional
		g.CreateIfMissing = g.CreateIfMissing || seg.CreateIfMissing
		g.IsArray = g.IsArray || seg.IsArray
		parent = g
	}

	if col.Pivot {
		parent.PivotColumns = append(parent.PivotColumns, col)
		return
	}

	parent.Columns = append(parent.Columns, col)

	if rl := col.Mapping.RelationLookup; rl != nil {
		switch {
		case parent.LookupField == "":
			parent.LookupField = rl.Field
		case parent.LookupField != rl.Field:
			c.diags.AddWarning("conflicting_lookup",
				fmt.Sprintf("relation %s is already looked up by %q; %q is ignored", parent.Key, parent.LookupField, rl.Field),
				ce.Label, col.Target())
		}

		parent.CreateIfMissing = parent.CreateIfMissing || rl.CreateIfMissing
	}
}

// finalizeGroup picks the lookup attribute of every group: the declared
// relation_lookup field, else the first mapped unique attribute, else the
// first mapped attribute.
func (c *compiler) finalizeGroup(ce *CompiledEntity, g *RelationGroup) {
	if g.LookupField == "" {
		for _, col := range g.Columns {
			if col.Declared && col.Attribute.Unique {
				g.LookupField = col.Attribute.Name
				break
			}
		}
	}

	if g.LookupField == "" {
		for _, col := range g.Columns {
			if col.Declared {
				g.LookupField = col.Attribute.Name
				break
			}
		}
	}

	if g.LookupField == "" {
		c.diags.AddError("relation_without_lookup",
			fmt.Sprintf("relation %s has no mapped attribute to find the related %s by", g.Key, g.Relation.Target),
			ce.Label, g.Key)
	}

	for _, child := range g.Children {
		c.finalizeGroup(ce, child)
	}
}

func (c *compiler) compileUniqueKey(ce *CompiledEntity) {
	mapped := make(map[string]bool, len(ce.Attributes))
	for _, col := range ce.Attributes {
		mapped[col.Attribute.Name] = true
	}

	for _, name := range ce.Mapping.Options.UniqueKey {
		if !ce.Entity.HasAttribute(name) {
			c.diags.AddError("unknown_unique_key",
				fmt.Sprintf("unique_key %q is not an attribute of %s", name, ce.Entity.Name),
				ce.Label, name, suggest(name, ce.Entity.AttributeNames())...)

			continue
		}

		if !mapped[name] {
			c.diags.AddError("unique_key_not_mapped",
				fmt.Sprintf("unique_key %q is not mapped by any column", name), ce.Label, name)

			continue
		}

		ce.UniqueKey = append(ce.UniqueKey, name)
	}
}

// checkRequired warns about required attributes no column sets.
func (c *compiler) checkRequired(ce *CompiledEntity) {
	set := make(map[string]bool)
	for _, col := range ce.Attributes {
		set[col.Attribute.Name] = true
	}

	for _, g := range ce.Groups {
		if g.Relation.Kind == schema.OwnedSingle {
			set[g.Relation.ForeignKey] = true
		}
	}

	for _, name := range ce.Entity.RequiredAttributes() {
		if !set[name] {
			c.diags.AddWarning("unmapped_required_attribute",
				fmt.Sprintf("required attribute %q is not mapped; new records will fail validation", name),
				ce.Label, name)
		}
	}
}

func (c *compiler) compilePivot(ce *CompiledEntity) {
	m := ce.Mapping
	label := ce.Label

	if strings.TrimSpace(m.RelationPath) == "" {
		c.diags.AddError("missing_relation_path", "pivot_sync mapping must name a relation_path", label, "")
		return
	}

	d, ok := ce.Entity.Relation(m.RelationPath)
	if !ok {
		c.diags.AddError("unknown_relation", fmt.Sprintf("%s has no relation %q", ce.Entity.Name, m.RelationPath),
			label, m.RelationPath, suggest(m.RelationPath, ce.Entity.RelationNames())...)

		return
	}

	if d.Kind != schema.ManyToMany {
		c.diags.AddError("relation_path_not_many_to_many",
			fmt.Sprintf("relation_path %s is %s; pivot_sync needs a many-to-many relation", d.Name, d.Kind),
			label, m.RelationPath)

		return
	}

	spec := &PivotSpec{
		Relation:    d,
		OwnerLookup: make(map[*CompiledColumn]string),
		Strategy:    m.Options.SyncStrategy,
	}

	for _, col := range ce.Attributes {
		if !col.Declared {
			continue
		}

		attr := col.Attribute.Name
		if rl := col.Mapping.RelationLookup; rl != nil {
			attr = rl.Field
		}

		spec.OwnerColumns = append(spec.OwnerColumns, col)
		spec.OwnerLookup[col] = attr
	}

	if len(spec.OwnerColumns) == 0 {
		c.diags.AddError("pivot_owner_lookup_missing",
			fmt.Sprintf("pivot_sync mapping needs at least one %s attribute column to find the owner", ce.Entity.Name),
			label, "")
	}

	for _, g := range ce.Groups {
		if g.Key == d.Name {
			spec.Related = g
			continue
		}

		c.diags.AddError("pivot_foreign_relation",
			fmt.Sprintf("pivot_sync columns may only target relation %s, not %s", d.Name, g.Key), label, g.Key)
	}

	if spec.Related == nil {
		c.diags.AddError("pivot_target_missing",
			fmt.Sprintf("pivot_sync mapping needs a column targeting %s.<attribute>", d.Name), label, "")

		return
	}

	ce.Pivot = spec
}

func (c *compiler) checkExecutionOrders() {
	seen := make(map[int]string)

	for _, ce := range c.entities {
		order := ce.Mapping.ExecutionOrder
		if order == 0 {
			continue
		}

		if other, dup := seen[order]; dup {
			c.diags.AddError("duplicate_execution_order",
				fmt.Sprintf("execution_order %d is also used by %s", order, other), ce.Label, "")

			continue
		}

		seen[order] = ce.Label
	}
}

// checkPivotOwners requires a standard mapping of the same entity type to
// run before every pivot sync.
func (c *compiler) checkPivotOwners() {
	for _, ce := range c.entities {
		if !ce.Mapping.IsPivot() {
			continue
		}

		found := false

		for _, other := range c.entities {
			if other.Mapping.IsPivot() || other.Mapping.Model != ce.Mapping.Model {
				continue
			}

			if runsBefore(other, ce) {
				found = true
				break
			}
		}

		if !found {
			c.diags.AddError("pivot_without_owner_mapping",
				fmt.Sprintf("pivot_sync on %s needs a %s mapping with a lower execution order",
					ce.Mapping.RelationPath, ce.Mapping.Model),
				ce.Label, ce.Mapping.RelationPath)
		}
	}
}

func runsBefore(a, b *CompiledEntity) bool {
	ao, bo := a.Mapping.ExecutionOrder, b.Mapping.ExecutionOrder
	if ao != 0 && bo != 0 {
		return ao < bo
	}

	return a.Index < b.Index
}

func suggest(name string, candidates []string) []string {
	if s, ok := match.Suggest(name, candidates); ok {
		return []string{s}
	}

	return nil
}
