// Package recipe defines buildable components and the registry that holds
// them.
//
// A [Recipe] is a named, versioned description of one software component:
// its dependencies, the ordered steps that build it, the actions that
// implement each step, and the environment those actions run under. Recipes
// are registered explicitly in a [Registry]; the [Loader] is one such caller,
// reading HCL recipe files and turning each step's commands into shell
// actions.
//
// Each call to [Recipe.Run] opens the recipe's environment scope, truncates
// the step's log file, and hands both to the step's [Action].
//
// Example usage:
//
//	reg := recipe.NewRegistry()
//	reg.Add(&recipe.Recipe{
//	    Name:    "zlib",
//	    Version: "1.3.1",
//	    Steps:   recipe.DefaultSteps(platform, false),
//	    Actions: map[recipe.Step]recipe.Action{
//	        recipe.StepCompile: compileZlib,
//	    },
//	    Env:    env.FromEnviron(os.Environ()),
//	    LogDir: logs,
//	})
//
//	r, err := reg.Get("zlib")
//	if err != nil {
//	    return err
//	}
//	err = r.Run(ctx, recipe.StepCompile)
package recipe
