// Package schema is the entity metadata registry.
//
// Entities, entity sets and contexts are declared by name and validated
// once; everything downstream (expression builder, SQL lowering, change
// tracking) works with the typed handles the registry returns rather than
// re-resolving names.
//
// DECLARATION:
//
//	reg := schema.NewRegistry()
//	reg.DefineEntity("Blog",
//	    schema.FieldSpec{Name: "Id", DataType: "int", Key: true, Computed: true},
//	    schema.FieldSpec{Name: "Name", DataType: "string"},
//	    schema.FieldSpec{Name: "Posts", DataType: "Array", ElementType: "BlogPost", InverseProperty: "Blog"},
//	)
//	reg.DefineEntity("BlogPost", ...,
//	    schema.FieldSpec{Name: "Blog", DataType: "Blog", InverseProperty: "Posts"},
//	)
//	model, err := reg.DefineContext("BlogContext",
//	    schema.SetSpec{Name: "Blogs", ElementType: "Blog"},
//	    schema.SetSpec{Name: "BlogPosts", ElementType: "BlogPost"},
//	)
//
// Entity references may point forward: DefineEntity accepts names that are
// not registered yet. DefineContext resolves every navigation of every
// entity it covers and is the latest point at which a *MetadataError is
// reported.
//
// NAVIGATION:
//
// A Reference field points at one parent entity and owns the foreign-key
// column, named by ForeignKeyColumn unless FieldSpec.Column overrides it.
// A Collection field ("Array") is the one-to-many side and must name its
// inverse Reference. Many-to-many and one-to-one pairs are rejected.
//
// Declarations can also be written in CUE; see CompileCUE and LoadCUE.
package schema
