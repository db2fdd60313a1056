package rbac

// DefaultGrants is the school's default role → permission table. proprietaire and
// admin_systeme are absent: NewCatalog grants them every supported pair.
func DefaultGrants() []Grant {
	var out []Grant
	grant := func(role Role, resource Resource, scope Scope, actions ...Action) {
		for _, a := range actions {
			out = append(out, Grant{Role: role, Resource: resource, Action: a, Scope: scope})
		}
	}

	// Financial branch.
	grant(RoleDirecteur, ResourcePayments, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionApprove, ActionExport)
	grant(RoleDirecteur, ResourceFees, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionExport)
	grant(RoleDirecteur, ResourceInvoices, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionApprove, ActionExport)
	grant(RoleDirecteur, ResourceExpenses, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionApprove, ActionExport)
	grant(RoleDirecteur, ResourceSafeExpense, ScopeAll, ActionView, ActionCreate, ActionApprove, ActionExport)
	grant(RoleDirecteur, ResourceBankTransfers, ScopeAll, ActionView, ActionCreate, ActionApprove, ActionExport)
	grant(RoleDirecteur, ResourceSalaryHours, ScopeAll, ActionView, ActionApprove, ActionExport)
	grant(RoleDirecteur, ResourcePayroll, ScopeAll, ActionView, ActionApprove, ActionExport)
	grant(RoleDirecteur, ResourceTreasury, ScopeAll, ActionView, ActionExport)
	grant(RoleDirecteur, ResourceFinancialReports, ScopeAll, ActionView, ActionExport)
	grant(RoleDirecteur, ResourceRefunds, ScopeAll, ActionView, ActionApprove)
	grant(RoleDirecteur, ResourceDiscounts, ScopeAll, ActionView, ActionCreate, ActionApprove)
	grant(RoleDirecteur, ResourceUsers, ScopeAll, ActionView)
	grant(RoleDirecteur, ResourceSchoolSettings, ScopeAll, ActionView)

	grant(RoleComptable, ResourcePayments, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionExport)
	grant(RoleComptable, ResourceFees, ScopeAll, ActionView)
	grant(RoleComptable, ResourceInvoices, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionExport)
	grant(RoleComptable, ResourceExpenses, ScopeAll, ActionView, ActionCreate, ActionUpdate)
	grant(RoleComptable, ResourceSafeExpense, ScopeAll, ActionView, ActionCreate, ActionUpdate)
	grant(RoleComptable, ResourceBankTransfers, ScopeAll, ActionView, ActionCreate)
	grant(RoleComptable, ResourceSalaryHours, ScopeAll, ActionView, ActionCreate, ActionUpdate)
	grant(RoleComptable, ResourcePayroll, ScopeAll, ActionView, ActionCreate, ActionExport)
	grant(RoleComptable, ResourceTreasury, ScopeAll, ActionView)
	grant(RoleComptable, ResourceFinancialReports, ScopeAll, ActionView, ActionExport)
	grant(RoleComptable, ResourceRefunds, ScopeAll, ActionView, ActionCreate)
	grant(RoleComptable, ResourceDiscounts, ScopeAll, ActionView, ActionCreate)

	grant(RoleCaissier, ResourcePayments, ScopeAll, ActionView, ActionCreate)
	grant(RoleCaissier, ResourceFees, ScopeAll, ActionView)
	grant(RoleCaissier, ResourceInvoices, ScopeAll, ActionView)
	grant(RoleCaissier, ResourceSafeExpense, ScopeAll, ActionView, ActionCreate)
	grant(RoleCaissier, ResourceRefunds, ScopeAll, ActionView)

	// Academic branch.
	grant(RoleDirecteurAcademique, ResourceStudents, ScopeOwnLevel, ActionView, ActionCreate, ActionUpdate, ActionExport)
	grant(RoleDirecteurAcademique, ResourceEnrollments, ScopeOwnLevel, ActionView, ActionApprove, ActionExport)
	grant(RoleDirecteurAcademique, ResourceClasses, ScopeOwnLevel, ActionView, ActionCreate, ActionUpdate)
	grant(RoleDirecteurAcademique, ResourceSubjects, ScopeAll, ActionView, ActionCreate, ActionUpdate)
	grant(RoleDirecteurAcademique, ResourceGrades, ScopeOwnLevel, ActionView, ActionApprove, ActionExport)
	grant(RoleDirecteurAcademique, ResourceReportCards, ScopeOwnLevel, ActionView, ActionCreate, ActionApprove, ActionExport)
	grant(RoleDirecteurAcademique, ResourceAttendance, ScopeOwnLevel, ActionView, ActionExport)
	grant(RoleDirecteurAcademique, ResourceTimetables, ScopeOwnLevel, ActionView, ActionCreate, ActionUpdate, ActionExport)
	grant(RoleDirecteurAcademique, ResourceTeachers, ScopeOwnLevel, ActionView, ActionExport)
	grant(RoleDirecteurAcademique, ResourceDiscipline, ScopeOwnLevel, ActionView, ActionApprove)
	grant(RoleDirecteurAcademique, ResourceClubs, ScopeAll, ActionView, ActionCreate, ActionUpdate)
	grant(RoleDirecteurAcademique, ResourceClubEnrollments, ScopeAll, ActionView, ActionApprove)
	grant(RoleDirecteurAcademique, ResourceUsers, ScopeAll, ActionView)
	grant(RoleDirecteurAcademique, ResourceSchoolSettings, ScopeAll, ActionView)

	grant(RoleSecretaire, ResourceStudents, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionExport)
	grant(RoleSecretaire, ResourceEnrollments, ScopeAll, ActionView, ActionCreate, ActionUpdate)
	grant(RoleSecretaire, ResourceClasses, ScopeAll, ActionView)
	grant(RoleSecretaire, ResourceAttendance, ScopeAll, ActionView)
	grant(RoleSecretaire, ResourceTimetables, ScopeAll, ActionView)
	grant(RoleSecretaire, ResourceReportCards, ScopeAll, ActionView, ActionExport)
	grant(RoleSecretaire, ResourceClubs, ScopeAll, ActionView, ActionCreate, ActionUpdate)
	grant(RoleSecretaire, ResourceClubEnrollments, ScopeAll, ActionView, ActionCreate, ActionUpdate, ActionDelete)

	grant(RoleEnseignant, ResourceStudents, ScopeOwnClasses, ActionView)
	grant(RoleEnseignant, ResourceClasses, ScopeOwnClasses, ActionView)
	grant(RoleEnseignant, ResourceSubjects, ScopeAll, ActionView)
	grant(RoleEnseignant, ResourceGrades, ScopeOwnClasses, ActionView, ActionCreate, ActionUpdate)
	grant(RoleEnseignant, ResourceReportCards, ScopeOwnClasses, ActionView)
	grant(RoleEnseignant, ResourceAttendance, ScopeOwnClasses, ActionView, ActionCreate, ActionUpdate)
	grant(RoleEnseignant, ResourceTimetables, ScopeOwnClasses, ActionView)
	grant(RoleEnseignant, ResourceDiscipline, ScopeOwnClasses, ActionView, ActionCreate)
	grant(RoleEnseignant, ResourceClubs, ScopeAll, ActionView)

	grant(RoleSurveillant, ResourceStudents, ScopeOwnLevel, ActionView)
	grant(RoleSurveillant, ResourceAttendance, ScopeOwnLevel, ActionView, ActionCreate, ActionUpdate)
	grant(RoleSurveillant, ResourceDiscipline, ScopeOwnLevel, ActionView, ActionCreate, ActionUpdate)
	grant(RoleSurveillant, ResourceTimetables, ScopeOwnLevel, ActionView)

	grant(RoleParent, ResourceStudents, ScopeOwnChildren, ActionView)
	grant(RoleParent, ResourceGrades, ScopeOwnChildren, ActionView)
	grant(RoleParent, ResourceReportCards, ScopeOwnChildren, ActionView)
	grant(RoleParent, ResourceAttendance, ScopeOwnChildren, ActionView)
	grant(RoleParent, ResourceTimetables, ScopeOwnChildren, ActionView)
	grant(RoleParent, ResourceClubs, ScopeAll, ActionView)
	grant(RoleParent, ResourceClubEnrollments, ScopeOwnChildren, ActionView, ActionCreate)

	return out
}
